package domain

import "time"

// Roles are a closed set. Profile resolution rejects anything outside it so
// the access gate never has to reason about free-form role strings.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

func KnownRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// Session is the process-wide record of the currently signed-in subject.
// Invariant: IsAuthenticated is true iff SubjectID is non-empty, and Role is
// non-empty whenever IsAuthenticated is true.
type Session struct {
	SubjectID       string `json:"subject_id"`
	Role            string `json:"role"`
	IsAuthenticated bool   `json:"is_authenticated"`
	IsResolving     bool   `json:"is_resolving"`
}

// Profile associates a subject with a role. DocID is the storage key;
// accounts created under an older addressing scheme have a DocID that differs
// from the subject id, which is why resolution carries a query fallback over
// the embedded SubjectID field.
type Profile struct {
	DocID     string    `json:"doc_id"`
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID                string    `json:"id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	CostPriceCents    int64     `json:"cost_price_cents"`
	SellingPriceCents int64     `json:"selling_price_cents"`
	Stock             int       `json:"stock"`
	NotifyQuantity    int       `json:"notify_quantity"`
	CreatedAt         time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	CostPriceCents    int64  `json:"cost_price_cents"`
	SellingPriceCents int64  `json:"selling_price_cents"`
	Stock             int    `json:"stock"`
	NotifyQuantity    int    `json:"notify_quantity"`
}

type ProductUpdateRequest struct {
	Name              *string `json:"name,omitempty"`
	Category          *string `json:"category,omitempty"`
	CostPriceCents    *int64  `json:"cost_price_cents,omitempty"`
	SellingPriceCents *int64  `json:"selling_price_cents,omitempty"`
	Stock             *int    `json:"stock,omitempty"`
	NotifyQuantity    *int    `json:"notify_quantity,omitempty"`
}

// Sale is one ledger entry. Date is the store-local calendar day in
// YYYY-MM-DD form; CreatedAt preserves arrival order for tie-breaking.
type Sale struct {
	ID               string    `json:"id"`
	Date             string    `json:"date"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	ProfitCents      int64     `json:"profit_cents"`
	ItemsCount       int       `json:"items_count"`
	CreatedAt        time.Time `json:"created_at"`
}

type SaleCreateRequest struct {
	Date             string `json:"date"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	ProfitCents      int64  `json:"profit_cents"`
	ItemsCount       int    `json:"items_count"`
}

// ChartPoint is one day of the revenue series, amounts summed per day.
type ChartPoint struct {
	Date        string `json:"date"`
	AmountCents int64  `json:"amount_cents"`
}

// DerivedStats is the dashboard view. The catalog-derived and ledger-derived
// field groups each update atomically but independently of each other.
// CatalogStale/LedgerStale flag that the corresponding snapshot could not be
// refreshed and the values shown are last-known-good.
type DerivedStats struct {
	RevenueCents    int64        `json:"revenue_cents"`
	ProfitCents     int64        `json:"profit_cents"`
	InvestmentCents int64        `json:"investment_cents"`
	SoldCount       int          `json:"sold_count"`
	TotalProducts   int          `json:"total_products"`
	LowStockCount   int          `json:"low_stock_count"`
	OutOfStockCount int          `json:"out_of_stock_count"`
	ChartSeries     []ChartPoint `json:"chart_series"`
	RecentActivity  []Sale       `json:"recent_activity"`
	CatalogStale    bool         `json:"catalog_stale"`
	LedgerStale     bool         `json:"ledger_stale"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	SubjectID   string `json:"subject_id"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the identity attached to a request after token verification.
type Actor struct {
	SubjectID string
	Role      string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	SubjectID string
	Email     string
	Password  string
	CreatedAt time.Time
}
