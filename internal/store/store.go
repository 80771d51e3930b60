package store

import (
	"context"
	"errors"
	"time"

	"livraria/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalid           = errors.New("invalid request")
	ErrUnavailable       = errors.New("store not available")
	ErrConflict          = errors.New("concurrent update")
)

// Row is the pointer form of an entity the generic layers can address.
type Row[T any] interface {
	*T
	RecordID() string
	Field(name string) (any, bool)
	Stamp(id string, at time.Time)
	Identify(id string, createdAt time.Time)
}

// Table is the CRUD contract of one logical table.
type Table[T any] interface {
	List(ctx context.Context, q Query) ([]T, error)
	Get(ctx context.Context, id string) (*T, error)
	Create(ctx context.Context, item T) (*T, error)
	Update(ctx context.Context, id string, item T) (*T, error)
	Delete(ctx context.Context, id string) error
}

type Repository interface {
	Name() string

	Books() Table[domain.Book]
	Customers() Table[domain.Customer]
	Sales() Table[domain.Sale]
	FinancialTransactions() Table[domain.FinancialTransaction]

	CreateSaleItems(ctx context.Context, items []domain.SaleItem) ([]domain.SaleItem, error)
	ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	// TransitionSaleStatus writes the payment status only while the stored
	// status still equals from; otherwise it answers ErrConflict.
	TransitionSaleStatus(ctx context.Context, saleID string, from string, to string) (*domain.Sale, error)

	AppendStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error)
	ListStockMovements(ctx context.Context, q Query) ([]domain.StockMovement, error)

	// IncrementBookQuantity atomically adds delta to the on-hand quantity,
	// clamping at zero, and returns the resulting quantity.
	IncrementBookQuantity(ctx context.Context, bookID string, delta int) (int, error)
	// InsertFinancialTransactionDateSafe stores date columns as calendar dates
	// so a transaction never shifts a day across time zones.
	InsertFinancialTransactionDateSafe(ctx context.Context, tx domain.FinancialTransaction) (*domain.FinancialTransaction, error)
	UpsertProfile(ctx context.Context, profile domain.Profile) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
