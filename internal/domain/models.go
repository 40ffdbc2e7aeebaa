package domain

import "time"

type Product struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	PriceCents        int64  `json:"price_cents"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Active            bool   `json:"active"`
}

type ProductCreateRequest struct {
	Name              string `json:"name"`
	Category          string `json:"category"`
	PriceCents        int64  `json:"price_cents"`
	InitialStock      int    `json:"initial_stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

type ProductUpdateRequest struct {
	Name              *string `json:"name,omitempty"`
	Category          *string `json:"category,omitempty"`
	PriceCents        *int64  `json:"price_cents,omitempty"`
	LowStockThreshold *int    `json:"low_stock_threshold,omitempty"`
	Active            *bool   `json:"active,omitempty"`
}

// SaleItem is a merchandise line inside a sale. ReturnedQuantity never
// exceeds Quantity and only the return processor may raise it.
type SaleItem struct {
	ProductID        string `json:"product_id"`
	Name             string `json:"name"`
	UnitPriceCents   int64  `json:"unit_price_cents"`
	Quantity         int    `json:"quantity"`
	ReturnedQuantity int    `json:"returned_quantity"`
}

// AuthorizationRecord is an append-only audit entry on a sale documenting
// who approved a void, return or withdrawal.
type AuthorizationRecord struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}

type AirtimeDetails struct {
	Network     string `json:"network"`
	VoucherCode string `json:"voucher_code,omitempty"`
}

type ElectricityDetails struct {
	MeterNumber  string `json:"meter_number"`
	Municipality string `json:"municipality"`
}

type VoucherDetails struct {
	Code string `json:"code"`
}

// Sale is the ledger envelope shared by every transaction type. The Type
// discriminant selects the payload: Items for merchandise sales, the detail
// structs for airtime/electricity/voucher, WithdrawalReason for cash
// withdrawals (which carry a negative TotalCents). Rows are never deleted;
// after creation only Status, item ReturnedQuantity and Authorizations may
// change, and only through the void/return operations.
type Sale struct {
	ID               string                `json:"id"`
	Date             time.Time             `json:"date"`
	Type             string                `json:"type"`
	Status           string                `json:"status"`
	PaymentMethod    string                `json:"payment_method"`
	SubtotalCents    int64                 `json:"subtotal_cents"`
	TaxRatePercent   float64               `json:"tax_rate_percent"`
	TaxCents         int64                 `json:"tax_cents"`
	TotalCents       int64                 `json:"total_cents"`
	AmountPaidCents  int64                 `json:"amount_paid_cents"`
	ChangeCents      int64                 `json:"change_cents"`
	PaymentReference string                `json:"payment_reference,omitempty"`
	OperatorID       string                `json:"operator_id"`
	OperatorName     string                `json:"operator_name"`
	Items            []SaleItem            `json:"items,omitempty"`
	Airtime          *AirtimeDetails       `json:"airtime,omitempty"`
	Electricity      *ElectricityDetails   `json:"electricity,omitempty"`
	Voucher          *VoucherDetails       `json:"voucher,omitempty"`
	WithdrawalReason string                `json:"withdrawal_reason,omitempty"`
	Authorizations   []AuthorizationRecord `json:"authorizations,omitempty"`
}

// RemainingQuantity reports the not-yet-returned units of an item.
func (i SaleItem) RemainingQuantity() int {
	if r := i.Quantity - i.ReturnedQuantity; r > 0 {
		return r
	}
	return 0
}

// FullyReturned reports whether every unit of every item has been returned.
func (s Sale) FullyReturned() bool {
	for _, item := range s.Items {
		if item.ReturnedQuantity < item.Quantity {
			return false
		}
	}
	return true
}

// Operator identifies the salesperson performing an operation. Identity is
// established upstream at login; the ledger records it as given.
type Operator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Identity is the proof produced by the authorization gate for privileged
// actions. The ledger core only copies it into the audit trail.
type Identity struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Role     string `json:"role"`
}

func (id Identity) IsZero() bool {
	return id.UserID == ""
}

type SaleLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateSaleRequest struct {
	Lines            []SaleLine `json:"lines"`
	PaymentMethod    string     `json:"payment_method"`
	TaxRatePercent   float64    `json:"tax_rate_percent"`
	AmountPaidCents  int64      `json:"amount_paid_cents"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	Operator         Operator   `json:"operator"`
}

type ReturnLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type VoidSaleRequest struct {
	Reason           string `json:"reason"`
	AuthorizationPIN string `json:"authorization_pin"`
}

type ReturnItemsRequest struct {
	Lines            []ReturnLine `json:"lines"`
	AuthorizationPIN string       `json:"authorization_pin"`
}

type WithdrawalRequest struct {
	AmountCents      int64    `json:"amount_cents"`
	Reason           string   `json:"reason"`
	AuthorizationPIN string   `json:"authorization_pin,omitempty"`
	Operator         Operator `json:"operator"`
}

type AirtimeSaleRequest struct {
	AmountCents   int64    `json:"amount_cents"`
	Network       string   `json:"network"`
	PaymentMethod string   `json:"payment_method"`
	Operator      Operator `json:"operator"`
}

type ElectricitySaleRequest struct {
	AmountCents   int64    `json:"amount_cents"`
	MeterNumber   string   `json:"meter_number"`
	Municipality  string   `json:"municipality"`
	PaymentMethod string   `json:"payment_method"`
	Operator      Operator `json:"operator"`
}

type VoucherSaleRequest struct {
	AmountCents   int64    `json:"amount_cents"`
	Code          string   `json:"code"`
	PaymentMethod string   `json:"payment_method"`
	Operator      Operator `json:"operator"`
}

type TillSession struct {
	ID                  string     `json:"id"`
	OperatorID          string     `json:"operator_id"`
	OperatorName        string     `json:"operator_name"`
	StartDate           time.Time  `json:"start_date"`
	OpeningBalanceCents int64      `json:"opening_balance_cents"`
	Status              string     `json:"status"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	ExpectedCashCents   int64      `json:"expected_cash_cents"`
	CountedCashCents    int64      `json:"counted_cash_cents"`
	DifferenceCents     int64      `json:"difference_cents"`
}

type StartSessionRequest struct {
	Operator            Operator `json:"operator"`
	OpeningBalanceCents int64    `json:"opening_balance_cents"`
}

type EndSessionRequest struct {
	SessionID        string `json:"session_id"`
	CountedCashCents int64  `json:"counted_cash_cents"`
}

// CashUpStats are the per-period totals for one operator. NetCents is
// cash + card - returns; voided totals are tracked but excluded from net.
type CashUpStats struct {
	CashCents    int64 `json:"cash_cents"`
	CardCents    int64 `json:"card_cents"`
	VoidsCents   int64 `json:"voids_cents"`
	ReturnsCents int64 `json:"returns_cents"`
	NetCents     int64 `json:"net_cents"`
}

func (s *CashUpStats) Add(other CashUpStats) {
	s.CashCents += other.CashCents
	s.CardCents += other.CardCents
	s.VoidsCents += other.VoidsCents
	s.ReturnsCents += other.ReturnsCents
	s.NetCents += other.NetCents
}

type OperatorCashUp struct {
	OperatorID   string                 `json:"operator_id"`
	OperatorName string                 `json:"operator_name"`
	Periods      map[string]CashUpStats `json:"periods"`
}

type CashUpSummary struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Operators   []OperatorCashUp       `json:"operators"`
	GrandTotal  map[string]CashUpStats `json:"grand_total"`
}

type ReorderItem struct {
	Product       Product `json:"product"`
	SalesVolume   int     `json:"sales_volume"`
	PriorityScore float64 `json:"priority_score"`
}

type ReorderList struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Items       []ReorderItem `json:"items"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	OperatorID  string `json:"operator_id"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	PIN      string `json:"pin,omitempty"`
	Role     string `json:"role"`
}

// UserAccount is the persistence model behind operator login and the PIN
// gate. Password and PIN hold bcrypt hashes, never plaintext.
type UserAccount struct {
	ID        string
	Username  string
	Name      string
	Password  string
	PIN       string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	SaleTypeSale        = "sale"
	SaleTypeWithdrawal  = "withdrawal"
	SaleTypeAirtime     = "airtime"
	SaleTypeElectricity = "electricity"
	SaleTypeVoucher     = "voucher"
)

const (
	SaleStatusCompleted         = "completed"
	SaleStatusPartiallyReturned = "partially_returned"
	SaleStatusReturned          = "returned"
	SaleStatusVoided            = "voided"
	SaleStatusWithdrawal        = "withdrawal"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
)

const (
	AuthActionVoid       = "void"
	AuthActionReturn     = "return"
	AuthActionWithdrawal = "withdrawal"
)

const (
	SessionStatusActive = "active"
	SessionStatusClosed = "closed"
)

const (
	PeriodToday     = "today"
	PeriodThisWeek  = "this_week"
	PeriodThisMonth = "this_month"
)

const (
	RoleAdministration = "administration"
	RoleSales          = "sales"
)
