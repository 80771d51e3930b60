package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Book struct {
	ID            string          `json:"id"`
	Title         string          `json:"title" validate:"required,max=255"`
	Author        string          `json:"author" validate:"required,max=255"`
	ISBN          string          `json:"isbn" validate:"omitempty,max=17"`
	Publisher     string          `json:"publisher"`
	Category      string          `json:"category"`
	PurchasePrice decimal.Decimal `json:"purchase_price" validate:"gte=0"`
	SellingPrice  decimal.Decimal `json:"selling_price" validate:"gte=0"`
	Quantity      int             `json:"quantity"`
	MinStock      *int            `json:"min_stock,omitempty" validate:"omitempty,gte=0"`
	SupplierID    string          `json:"supplier_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DefaultMinStock applies when a book has no configured threshold.
const DefaultMinStock = 5

func (b Book) MinimumStock() int {
	if b.MinStock == nil {
		return DefaultMinStock
	}
	return *b.MinStock
}

func (b Book) IsLowStock() bool {
	return b.Quantity <= b.MinimumStock()
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required,max=200"`
	Email     string    `json:"email" validate:"omitempty,email"`
	Phone     string    `json:"phone"`
	Street    string    `json:"street"`
	Number    string    `json:"number"`
	District  string    `json:"district"`
	City      string    `json:"city"`
	State     string    `json:"state" validate:"omitempty,len=2"`
	ZipCode   string    `json:"zip_code"`
	Type      string    `json:"type" validate:"required,oneof=individual organization"`
	Status    string    `json:"status" validate:"required,oneof=active inactive"`
	TaxID     string    `json:"tax_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Sale struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customer_id,omitempty"`
	OperatorID    string          `json:"operator_id"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus string          `json:"payment_status"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []SaleItem      `json:"items,omitempty"`
}

type SaleItem struct {
	ID        string          `json:"id"`
	SaleID    string          `json:"sale_id"`
	BookID    string          `json:"book_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type StockMovement struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	Direction string    `json:"direction"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	Note      string    `json:"note,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

type FinancialTransaction struct {
	ID            string          `json:"id"`
	Description   string          `json:"description" validate:"required,max=255"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Type          string          `json:"type" validate:"required,oneof=income expense"`
	Date          time.Time       `json:"date" validate:"required"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	PaidDate      *time.Time      `json:"paid_date,omitempty"`
	Category      string          `json:"category"`
	Status        string          `json:"status" validate:"required,oneof=confirmed pending canceled"`
	PaymentMethod string          `json:"payment_method"`
	LinkID        string          `json:"link_id,omitempty"`
	LinkType      string          `json:"link_type,omitempty" validate:"omitempty,oneof=sale purchase"`
	LinkPath      string          `json:"link_path,omitempty"`
	ReceiptURL    string          `json:"receipt_url,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	ExternalRef   string          `json:"external_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Path resolves the navigable reference of a linked transaction.
func (t FinancialTransaction) Path() string {
	if t.LinkID == "" {
		return ""
	}
	switch t.LinkType {
	case LinkSale:
		return "/sales/" + t.LinkID
	case LinkPurchase:
		return "/purchases/" + t.LinkID
	}
	return ""
}

// Profile is the operator row upserted on checkout.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=admin operator"`
}

type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type CheckoutLine struct {
	BookID    string           `json:"book_id" validate:"required"`
	Quantity  int              `json:"quantity" validate:"gte=1"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Discount  decimal.Decimal  `json:"discount" validate:"gte=0"`
}

type CheckoutRequest struct {
	CustomerID    string           `json:"customer_id,omitempty"`
	OperatorID    string           `json:"operator_id,omitempty"`
	PaymentMethod string           `json:"payment_method" validate:"required"`
	Notes         string           `json:"notes,omitempty"`
	Lines         []CheckoutLine   `json:"lines" validate:"required,min=1,dive"`
	ExpectedTotal *decimal.Decimal `json:"expected_total,omitempty"`
}

type CheckoutResponse struct {
	SaleID        string          `json:"sale_id"`
	Total         decimal.Decimal `json:"total"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
}

type SaleStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=paid pending canceled"`
}

type StockMovementRequest struct {
	BookID    string `json:"book_id" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=in out"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
	Reason    string `json:"reason" validate:"required,oneof=purchase sale return adjustment loss other reversal"`
	Note      string `json:"note,omitempty"`
}

type StockMovementResponse struct {
	Book     Book          `json:"book"`
	Movement StockMovement `json:"movement"`
}

type InventoryCountLine struct {
	BookID     string `json:"book_id" validate:"required"`
	CountedQty int    `json:"counted_qty" validate:"gte=0"`
}

type InventoryCountRequest struct {
	Note  string               `json:"note,omitempty"`
	Items []InventoryCountLine `json:"items" validate:"required,min=1,dive"`
}

type InventoryAdjustmentLine struct {
	BookID     string `json:"book_id"`
	SystemQty  int    `json:"system_qty"`
	CountedQty int    `json:"counted_qty"`
	DeltaQty   int    `json:"delta_qty"`
	Error      string `json:"error,omitempty"`
}

type InventoryAdjustmentResponse struct {
	Increases int                       `json:"increases"`
	Decreases int                       `json:"decreases"`
	NetDelta  int                       `json:"net_delta"`
	Lines     []InventoryAdjustmentLine `json:"lines"`
	CreatedAt string                    `json:"created_at"`
}

type Recurrence struct {
	Periodicity string    `json:"periodicity" validate:"required,oneof=monthly quarterly semiannual annual"`
	EndDate     time.Time `json:"end_date" validate:"required"`
}

type ExpenseRequest struct {
	Description   string          `json:"description" validate:"required,max=255"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Date          time.Time       `json:"date" validate:"required"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	PaidDate      *time.Time      `json:"paid_date,omitempty"`
	Category      string          `json:"category"`
	PaymentMethod string          `json:"payment_method"`
	LinkID        string          `json:"link_id,omitempty"`
	LinkType      string          `json:"link_type,omitempty" validate:"omitempty,oneof=sale purchase"`
	Notes         string          `json:"notes,omitempty"`
	Recurrence    *Recurrence     `json:"recurrence,omitempty"`
}

type ExpenseResponse struct {
	Expense      FinancialTransaction   `json:"expense"`
	Installments []FinancialTransaction `json:"installments,omitempty"`
}

type TransactionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed pending canceled"`
}

type ReceiptResponse struct {
	TransactionID string `json:"transaction_id"`
	ReceiptURL    string `json:"receipt_url"`
	Inline        bool   `json:"inline"`
}

type SalesSummary struct {
	Today      decimal.Decimal `json:"today"`
	TodayCount int             `json:"today_count"`
	ThisMonth  decimal.Decimal `json:"this_month"`
	LastMonth  decimal.Decimal `json:"last_month"`
	Trend      int             `json:"trend"`
}

type CustomerSummary struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Trend  int `json:"trend"`
}

type InventorySummary struct {
	TotalUnits   int `json:"total_units"`
	ProductCount int `json:"product_count"`
	LowStock     int `json:"low_stock"`
	Trend        int `json:"trend"`
}

type Activity struct {
	Kind         string          `json:"kind"`
	ReferenceID  string          `json:"reference_id"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	At           time.Time       `json:"at"`
	RelativeTime string          `json:"relative_time"`
}

type DashboardSummary struct {
	Sales       SalesSummary     `json:"sales"`
	Customers   CustomerSummary  `json:"customers"`
	Inventory   InventorySummary `json:"inventory"`
	Recent      []Activity       `json:"recent"`
	GeneratedAt time.Time        `json:"generated_at"`
}

const (
	PaymentPaid     = "paid"
	PaymentPending  = "pending"
	PaymentCanceled = "canceled"
)

const (
	TxIncome  = "income"
	TxExpense = "expense"
)

const (
	TxConfirmed = "confirmed"
	TxPending   = "pending"
	TxCanceled  = "canceled"
)

const (
	LinkSale     = "sale"
	LinkPurchase = "purchase"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

const (
	ReasonPurchase   = "purchase"
	ReasonSale       = "sale"
	ReasonReturn     = "return"
	ReasonAdjustment = "adjustment"
	ReasonLoss       = "loss"
	ReasonOther      = "other"
	ReasonReversal   = "reversal"
)

const (
	CustomerIndividual   = "individual"
	CustomerOrganization = "organization"
	CustomerActive       = "active"
	CustomerInactive     = "inactive"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// SalesCategory is the ledger category of income generated by checkout.
const SalesCategory = "Sales"
