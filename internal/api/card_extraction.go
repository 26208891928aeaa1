package api

import (
	"net/http"

	"biztomate-api/internal/response"
	"biztomate-api/internal/services"

	"github.com/gin-gonic/gin"
)

// CardExtractionRequest carries one base64-encoded card image.
type CardExtractionRequest struct {
	ImageData string `json:"imageData" binding:"required"`
}

// ExtractCard forwards the image to the OCR endpoint and returns the cleaned
// contact record. Extraction problems yield the fallback record rather than
// an error: the scanner UI always gets a card back.
// POST /api/cards/extract
func ExtractCard(c *gin.Context) {
	var req CardExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	ocrService := services.NewOCRService()
	record := ocrService.ExtractCard(c.Request.Context(), req.ImageData)

	response.SuccessJSON(c, record)
}
