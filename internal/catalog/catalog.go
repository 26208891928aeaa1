package catalog

// Plan identifies a subscription tier. The set is closed: every store product
// maps to exactly one of these, and anything unrecognized resolves to PlanFree.
type Plan string

const (
	PlanFree      Plan = "free"
	PlanBasic     Plan = "basic"
	PlanStandard  Plan = "standard"
	PlanPremium   Plan = "premium"
	PlanUnlimited Plan = "unlimited"
)

// QuotaUnlimited is the sentinel card quota for the unlimited plan. Quota
// arithmetic must check for it instead of treating it as a count.
const QuotaUnlimited = -1

// FreeScanLimit is the card quota of the free tier.
const FreeScanLimit = 20

// ProductPlan maps a plan to its store product and card quota.
type ProductPlan struct {
	PlanID         Plan   `json:"plan_id"`
	StoreProductID string `json:"store_product_id"`
	CardQuota      int    `json:"card_quota"`
	PriceDisplay   string `json:"price_display"`
}

// Unlimited reports whether the plan has no card quota cap.
func (p ProductPlan) Unlimited() bool {
	return p.CardQuota == QuotaUnlimited
}

// plans is the static catalog, loaded once and never mutated. The free tier
// has no store product: it is the fallback state, not something purchasable.
var plans = []ProductPlan{
	{PlanID: PlanFree, StoreProductID: "", CardQuota: FreeScanLimit, PriceDisplay: "Free"},
	{PlanID: PlanBasic, StoreProductID: "com.biztomate.scanner.basic", CardQuota: 100, PriceDisplay: "$4.99/month"},
	{PlanID: PlanStandard, StoreProductID: "com.biztomate.scanner.standard", CardQuota: 250, PriceDisplay: "$9.99/month"},
	{PlanID: PlanPremium, StoreProductID: "com.biztomate.scanner.premium", CardQuota: 500, PriceDisplay: "$19.99/month"},
	{PlanID: PlanUnlimited, StoreProductID: "com.biztomate.scanner.unlimited", CardQuota: QuotaUnlimited, PriceDisplay: "$39.99/month"},
}

var (
	byPlan    = make(map[Plan]ProductPlan, len(plans))
	byProduct = make(map[string]ProductPlan, len(plans))
)

func init() {
	for _, p := range plans {
		byPlan[p.PlanID] = p
		if p.StoreProductID != "" {
			byProduct[p.StoreProductID] = p
		}
	}
}

// All returns the full catalog in declaration order.
func All() []ProductPlan {
	out := make([]ProductPlan, len(plans))
	copy(out, plans)
	return out
}

// ByPlan looks up a plan by its identifier.
func ByPlan(id Plan) (ProductPlan, bool) {
	p, ok := byPlan[id]
	return p, ok
}

// ByProductID looks up a plan by its store product identifier.
func ByProductID(storeProductID string) (ProductPlan, bool) {
	p, ok := byProduct[storeProductID]
	return p, ok
}

// PlanForProduct resolves a store product identifier to its plan,
// falling back to PlanFree for unknown products.
func PlanForProduct(storeProductID string) Plan {
	if p, ok := byProduct[storeProductID]; ok {
		return p.PlanID
	}
	return PlanFree
}

// QuotaForPlan returns the card quota of a plan, falling back to the
// free-tier quota for unknown plans.
func QuotaForPlan(id Plan) int {
	if p, ok := byPlan[id]; ok {
		return p.CardQuota
	}
	return FreeScanLimit
}

// StoreProductIDs returns the purchasable product identifiers.
func StoreProductIDs() []string {
	ids := make([]string, 0, len(plans))
	for _, p := range plans {
		if p.StoreProductID != "" {
			ids = append(ids, p.StoreProductID)
		}
	}
	return ids
}

// BetterQuota reports whether quota a is strictly higher than quota b,
// treating the unlimited sentinel as higher than any finite quota.
func BetterQuota(a, b int) bool {
	if a == QuotaUnlimited {
		return b != QuotaUnlimited
	}
	if b == QuotaUnlimited {
		return false
	}
	return a > b
}
