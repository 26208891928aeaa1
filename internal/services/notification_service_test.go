package services

import (
	"testing"
	"time"

	"biztomate-api/internal/catalog"

	"github.com/stretchr/testify/assert"
)

func TestNotificationService_UnconfiguredIsNoop(t *testing.T) {
	svc := &NotificationService{}
	err := svc.SendPurchaseVerifiedEmail("user@example.com", catalog.PlanStandard, time.Now())
	assert.NoError(t, err, "without an API key nothing is sent and nothing fails")
}

func TestNotificationService_EmptyRecipientIsNoop(t *testing.T) {
	svc := &NotificationService{APIKey: "key", FromEmail: "noreply@example.com", FromName: "BizTomate"}
	err := svc.SendPurchaseVerifiedEmail("", catalog.PlanStandard, time.Now())
	assert.NoError(t, err)
}
