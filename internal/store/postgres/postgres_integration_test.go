package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"livraria/backend/internal/domain"
	"livraria/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("LIVRARIA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set LIVRARIA_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestBookQuantityClampsAtZero(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	book, err := s.Books().Create(ctx, domain.Book{
		Title:         fmt.Sprintf("Livro IT %d", time.Now().UnixNano()),
		Author:        "Autor IT",
		PurchasePrice: decimal.RequireFromString("10.00"),
		SellingPrice:  decimal.RequireFromString("20.00"),
		Quantity:      3,
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Books().Delete(ctx, book.ID)
	})

	qty, err := s.IncrementBookQuantity(ctx, book.ID, -5)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if qty != 0 {
		t.Fatalf("expected clamped quantity 0, got %d", qty)
	}

	if _, err := s.IncrementBookQuantity(ctx, "00000000-0000-0000-0000-000000000000", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown book, got %v", err)
	}

	filtered, err := s.Books().List(ctx, store.Query{Filters: map[string]string{"id": book.ID}})
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Quantity != 0 {
		t.Fatalf("unexpected filtered books: %+v", filtered)
	}
}

func TestDateSafeInsertIsIdempotentByExternalRef(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ref := fmt.Sprintf("sale:it-%d", time.Now().UnixNano())
	date := time.Date(2024, 3, 31, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	tx := domain.FinancialTransaction{
		Description: "Venda IT",
		Amount:      decimal.RequireFromString("110.00"),
		Type:        domain.TxIncome,
		Date:        date,
		Category:    domain.SalesCategory,
		Status:      domain.TxConfirmed,
		ExternalRef: ref,
	}

	first, err := s.InsertFinancialTransactionDateSafe(ctx, tx)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	t.Cleanup(func() {
		_ = s.FinancialTransactions().Delete(ctx, first.ID)
	})
	if got := first.Date.Format(dateLayout); got != "2024-03-31" {
		t.Fatalf("expected calendar date 2024-03-31, got %s", got)
	}

	second, err := s.InsertFinancialTransactionDateSafe(ctx, tx)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row for duplicate external ref, got %s and %s", first.ID, second.ID)
	}

	third, err := s.FinancialTransactions().Create(ctx, tx)
	if err != nil {
		t.Fatalf("generic create: %v", err)
	}
	if third.ID != first.ID {
		t.Fatalf("expected generic create to return existing row, got %s", third.ID)
	}
}

func TestBuildListRejectsUnknownColumns(t *testing.T) {
	s := newStore(nil)

	if _, _, err := s.books.buildList(store.Query{Filters: map[string]string{"password": "x"}}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid filter error, got %v", err)
	}

	query, args, err := s.books.buildList(store.Query{
		Filters:  map[string]string{"category": "Romance", "author": "Machado de Assis"},
		OrderBy:  "title",
		Order:    store.OrderDesc,
		Page:     2,
		PageSize: 10,
	})
	if err != nil {
		t.Fatalf("build list: %v", err)
	}
	want := "SELECT id, title, author, isbn, publisher, category, purchase_price, selling_price, quantity, min_stock, supplier_id, created_at, updated_at FROM books WHERE author = $1 AND category = $2 ORDER BY title DESC, id LIMIT $3 OFFSET $4"
	if query != want {
		t.Fatalf("unexpected query:\n%s", query)
	}
	if len(args) != 4 || args[0] != "Machado de Assis" || args[2] != 10 || args[3] != 10 {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildListCompilesTypedFilters(t *testing.T) {
	s := newStore(nil)

	query, args, err := s.transactions.buildList(store.Query{Filters: map[string]string{
		"date":       "2024-01-10",
		"created_at": "2024-01-10",
		"amount":     "49.90",
	}})
	if err != nil {
		t.Fatalf("build list: %v", err)
	}
	if !strings.HasSuffix(query, "WHERE amount = $1 AND (created_at AT TIME ZONE 'UTC')::date = $2::date AND date = $3::date") {
		t.Fatalf("unexpected query:\n%s", query)
	}
	if len(args) != 3 || args[0] != "49.90" || args[2] != "2024-01-10" {
		t.Fatalf("unexpected args: %#v", args)
	}

	for _, filters := range []map[string]string{
		{"selling_price": "cheap"},
		{"min_stock": "five"},
		{"created_at": "yesterday"},
	} {
		if _, _, err := s.books.buildList(store.Query{Filters: filters}); !errors.Is(err, store.ErrInvalid) {
			t.Fatalf("expected %v to be rejected, got %v", filters, err)
		}
	}
}
