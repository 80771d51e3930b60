package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"livraria/backend/internal/cache"
	"livraria/backend/internal/domain"
	"livraria/backend/internal/ledger"
	"livraria/backend/internal/store"
	"livraria/backend/internal/store/memory"
)

func newTestService(repo store.Repository) *Service {
	return New(repo, Options{VerifyDelay: 0, Ledger: ledger.NewMemory()})
}

func operatorCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "operator", Role: domain.RoleOperator})
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func createBook(t *testing.T, repo store.Repository, title string, price string, qty int) domain.Book {
	t.Helper()
	book, err := repo.Books().Create(context.Background(), domain.Book{
		Title:        title,
		Author:       "Autor",
		SellingPrice: money(price),
		Quantity:     qty,
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return *book
}

func TestRecordMovementRejectsInsufficientStock(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	book := createBook(t, repo, "Quincas Borba", "30.00", 3)

	_, err := svc.RecordMovement(operatorCtx(), domain.StockMovementRequest{
		BookID:    book.ID,
		Direction: domain.DirectionOut,
		Quantity:  5,
		Reason:    domain.ReasonLoss,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	current, _ := repo.Books().Get(context.Background(), book.ID)
	if current.Quantity != 3 {
		t.Fatalf("expected quantity to stay 3, got %d", current.Quantity)
	}
	movements, _ := repo.ListStockMovements(context.Background(), store.Query{})
	if len(movements) != 0 {
		t.Fatalf("expected no movement rows, got %d", len(movements))
	}
}

func TestRecordMovementAppendsOneAuditRow(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	book := createBook(t, repo, "Iracema", "25.00", 3)

	resp, err := svc.RecordMovement(operatorCtx(), domain.StockMovementRequest{
		BookID:    book.ID,
		Direction: domain.DirectionIn,
		Quantity:  4,
		Reason:    domain.ReasonPurchase,
		Note:      "NF 123",
	})
	if err != nil {
		t.Fatalf("record movement: %v", err)
	}
	if resp.Book.Quantity != 7 {
		t.Fatalf("expected quantity 7, got %d", resp.Book.Quantity)
	}

	movements, _ := svc.BookMovements(context.Background(), book.ID, store.Query{})
	if len(movements) != 1 {
		t.Fatalf("expected one movement, got %d", len(movements))
	}
	m := movements[0]
	if m.Direction != domain.DirectionIn || m.Reason != domain.ReasonPurchase || m.Actor != "operator" || m.Quantity != 4 {
		t.Fatalf("unexpected movement: %+v", m)
	}

	if _, err := svc.BookMovements(context.Background(), "missing", store.Query{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown book, got %v", err)
	}
}

func TestAdjustInventoryReportsDeltas(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)

	resp, err := svc.AdjustInventory(operatorCtx(), domain.InventoryCountRequest{
		Note: "balanço anual",
		Items: []domain.InventoryCountLine{
			{BookID: memory.SeedBookDomCasmurro, CountedQty: 20},
			{BookID: memory.SeedBookVidasSecas, CountedQty: 1},
			{BookID: memory.SeedBookCapitaes, CountedQty: 12},
			{BookID: "missing", CountedQty: 3},
		},
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if resp.Increases != 1 || resp.Decreases != 1 || resp.NetDelta != -1 {
		t.Fatalf("unexpected summary: %+v", resp)
	}
	if resp.Lines[3].Error == "" {
		t.Fatalf("expected error on unknown book line")
	}

	vidas, _ := repo.Books().Get(context.Background(), memory.SeedBookVidasSecas)
	if vidas.Quantity != 1 {
		t.Fatalf("expected counted quantity applied, got %d", vidas.Quantity)
	}
	movements, _ := repo.ListStockMovements(context.Background(), store.Query{Filters: map[string]string{"reason": domain.ReasonAdjustment}})
	if len(movements) != 2 {
		t.Fatalf("expected two adjustment movements, got %d", len(movements))
	}
}

func TestFinalizeSaleComputesTotalFromLines(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	ctx := operatorCtx()
	first := createBook(t, repo, "Livro A", "50.00", 10)
	second := createBook(t, repo, "Livro B", "20.00", 1)

	expected := money("110.00")
	resp, err := svc.FinalizeSale(ctx, domain.CheckoutRequest{
		PaymentMethod: "card",
		Lines: []domain.CheckoutLine{
			{BookID: first.ID, Quantity: 2, Discount: money("10.00")},
			{BookID: second.ID, Quantity: 1},
		},
		ExpectedTotal: &expected,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !resp.Total.Equal(expected) {
		t.Fatalf("expected total 110.00, got %s", resp.Total)
	}

	sale, err := svc.GetSale(ctx, resp.SaleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if !sale.Total.Equal(expected) || sale.PaymentStatus != domain.PaymentPaid || sale.OperatorID != "operator" {
		t.Fatalf("unexpected sale: %+v", sale)
	}
	if len(sale.Items) != 2 || !sale.Items[0].LineTotal.Equal(money("90")) {
		t.Fatalf("unexpected items: %+v", sale.Items)
	}

	a, _ := repo.Books().Get(ctx, first.ID)
	b, _ := repo.Books().Get(ctx, second.ID)
	if a.Quantity != 8 || b.Quantity != 0 {
		t.Fatalf("expected stock 8 and 0, got %d and %d", a.Quantity, b.Quantity)
	}
	movements, _ := repo.ListStockMovements(ctx, store.Query{Filters: map[string]string{"reason": domain.ReasonSale}})
	if len(movements) != 2 || !strings.Contains(movements[0].Note, resp.SaleID) {
		t.Fatalf("unexpected sale movements: %+v", movements)
	}

	linked, _ := repo.FinancialTransactions().List(ctx, store.Query{Filters: map[string]string{"link_id": resp.SaleID}})
	if len(linked) != 1 {
		t.Fatalf("expected one linked transaction, got %d", len(linked))
	}
	tx := linked[0]
	if tx.Type != domain.TxIncome || tx.Status != domain.TxConfirmed || tx.Category != domain.SalesCategory || !tx.Amount.Equal(expected) {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if !strings.Contains(tx.Description, unidentifiedCustomer) || tx.ExternalRef != "sale:"+resp.SaleID {
		t.Fatalf("unexpected description/ref: %q %q", tx.Description, tx.ExternalRef)
	}
	if resp.TransactionID != tx.ID {
		t.Fatalf("expected response to carry transaction id")
	}
	if _, ok := repo.Profile("operator"); !ok {
		t.Fatalf("expected operator profile upsert")
	}
}

func TestFinalizeSaleRejectsTamperedTotals(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	book := createBook(t, repo, "Livro", "50.00", 10)

	wrong := money("80.00")
	_, err := svc.FinalizeSale(operatorCtx(), domain.CheckoutRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CheckoutLine{{BookID: book.ID, Quantity: 2}},
		ExpectedTotal: &wrong,
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid for total mismatch, got %v", err)
	}

	_, err = svc.FinalizeSale(operatorCtx(), domain.CheckoutRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CheckoutLine{{BookID: book.ID, Quantity: 1, Discount: money("60")}},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid for oversized discount, got %v", err)
	}

	sales, _ := repo.Sales().List(context.Background(), store.Query{})
	if len(sales) != 0 {
		t.Fatalf("rejected checkouts must not create sales")
	}
}

func TestFinalizeSalePrefersSessionOperator(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)

	resp, err := svc.FinalizeSale(operatorCtx(), domain.CheckoutRequest{
		CustomerID:    memory.SeedCustomerAna,
		OperatorID:    "someone-else",
		PaymentMethod: "pix",
		Lines:         []domain.CheckoutLine{{BookID: memory.SeedBookHoraEstrela, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	sale, _ := svc.GetSale(context.Background(), resp.SaleID)
	if sale.OperatorID != "operator" {
		t.Fatalf("expected session operator, got %s", sale.OperatorID)
	}

	linked, _ := repo.FinancialTransactions().List(context.Background(), store.Query{Filters: map[string]string{"link_id": resp.SaleID}})
	if len(linked) != 1 || !strings.Contains(linked[0].Description, "Ana Souza") {
		t.Fatalf("expected customer name in description, got %+v", linked)
	}

	_, err = svc.FinalizeSale(context.Background(), domain.CheckoutRequest{
		PaymentMethod: "pix",
		Lines:         []domain.CheckoutLine{{BookID: memory.SeedBookHoraEstrela, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected operator identity requirement, got %v", err)
	}
}

type slowReadTransactions struct {
	store.Table[domain.FinancialTransaction]
	mu     sync.Mutex
	misses int
}

func (t *slowReadTransactions) List(ctx context.Context, q store.Query) ([]domain.FinancialTransaction, error) {
	t.mu.Lock()
	if t.misses > 0 {
		t.misses--
		t.mu.Unlock()
		return []domain.FinancialTransaction{}, nil
	}
	t.mu.Unlock()
	return t.Table.List(ctx, q)
}

type refusingTransactions struct {
	store.Table[domain.FinancialTransaction]
}

func (refusingTransactions) List(context.Context, store.Query) ([]domain.FinancialTransaction, error) {
	return []domain.FinancialTransaction{}, nil
}

func (refusingTransactions) Create(context.Context, domain.FinancialTransaction) (*domain.FinancialTransaction, error) {
	return nil, errors.New("row level security policy violation")
}

type wrappedRepo struct {
	*memory.Store
	transactions store.Table[domain.FinancialTransaction]
	failDateSafe bool
}

func (r *wrappedRepo) FinancialTransactions() store.Table[domain.FinancialTransaction] {
	return r.transactions
}

func (r *wrappedRepo) InsertFinancialTransactionDateSafe(ctx context.Context, tx domain.FinancialTransaction) (*domain.FinancialTransaction, error) {
	if r.failDateSafe {
		return nil, errors.New("rpc insert_financial_transaction unavailable")
	}
	return r.Store.InsertFinancialTransactionDateSafe(ctx, tx)
}

func TestSlowVerificationReadDoesNotDuplicateTransaction(t *testing.T) {
	base := memory.New()
	repo := &wrappedRepo{Store: base, transactions: &slowReadTransactions{Table: base.FinancialTransactions(), misses: 1}}
	svc := newTestService(repo)
	book := createBook(t, repo, "Livro", "40.00", 5)

	resp, err := svc.FinalizeSale(operatorCtx(), domain.CheckoutRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CheckoutLine{{BookID: book.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	linked, _ := base.FinancialTransactions().List(context.Background(), store.Query{Filters: map[string]string{"link_id": resp.SaleID}})
	if len(linked) != 1 {
		t.Fatalf("expected secondary write to be deduplicated by external ref, got %d rows", len(linked))
	}
	if resp.TransactionID != linked[0].ID {
		t.Fatalf("expected response to reference the surviving row")
	}
	entries, _ := svc.LocalLedger(context.Background())
	if len(entries) != 0 {
		t.Fatalf("expected no local ledger entries, got %d", len(entries))
	}
}

func TestDateSafeFailureFallsBackToGenericCreate(t *testing.T) {
	base := memory.New()
	repo := &wrappedRepo{Store: base, transactions: base.FinancialTransactions(), failDateSafe: true}
	svc := newTestService(repo)
	book := createBook(t, repo, "Livro", "40.00", 5)

	resp, err := svc.FinalizeSale(operatorCtx(), domain.CheckoutRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CheckoutLine{{BookID: book.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(resp.Warnings) != 0 {
		t.Fatalf("expected generic create to succeed silently, got %v", resp.Warnings)
	}
	linked, _ := base.FinancialTransactions().List(context.Background(), store.Query{Filters: map[string]string{"link_id": resp.SaleID}})
	if len(linked) != 1 {
		t.Fatalf("expected one transaction, got %d", len(linked))
	}
}

func TestUnrecordableIncomeLandsInLocalLedger(t *testing.T) {
	base := memory.New()
	repo := &wrappedRepo{Store: base, transactions: refusingTransactions{Table: base.FinancialTransactions()}, failDateSafe: true}
	svc := newTestService(repo)
	book := createBook(t, repo, "Livro", "40.00", 5)

	resp, err := svc.FinalizeSale(operatorCtx(), domain.CheckoutRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CheckoutLine{{BookID: book.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("sale must still succeed, got %v", err)
	}
	if resp.SaleID == "" {
		t.Fatalf("expected sale id")
	}

	entries, _ := svc.LocalLedger(context.Background())
	if len(entries) != 1 || entries[0].LinkID != resp.SaleID || entries[0].LinkPath != "/sales/"+resp.SaleID {
		t.Fatalf("expected one ledger entry linked to the sale, got %+v", entries)
	}
	if resp.TransactionID != entries[0].ID {
		t.Fatalf("expected response to reference ledger entry")
	}
	found := false
	for _, w := range resp.Warnings {
		if strings.Contains(w, "local ledger") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected local ledger warning, got %v", resp.Warnings)
	}
}

func TestCancelSaleReversesStockAndCancelsTransaction(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	ctx := operatorCtx()
	book := createBook(t, repo, "Livro", "15.00", 4)

	resp, err := svc.FinalizeSale(ctx, domain.CheckoutRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CheckoutLine{{BookID: book.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	sale, err := svc.ChangeSaleStatus(ctx, resp.SaleID, domain.SaleStatusRequest{Status: domain.PaymentCanceled})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sale.PaymentStatus != domain.PaymentCanceled {
		t.Fatalf("expected canceled sale, got %s", sale.PaymentStatus)
	}

	current, _ := repo.Books().Get(ctx, book.ID)
	if current.Quantity != 4 {
		t.Fatalf("expected stock restored to 4, got %d", current.Quantity)
	}
	reversals, _ := repo.ListStockMovements(ctx, store.Query{Filters: map[string]string{"reason": domain.ReasonReversal}})
	if len(reversals) != 1 || reversals[0].Direction != domain.DirectionIn || reversals[0].Quantity != 3 {
		t.Fatalf("unexpected reversal movements: %+v", reversals)
	}
	linked, _ := repo.FinancialTransactions().List(ctx, store.Query{Filters: map[string]string{"link_id": resp.SaleID}})
	if len(linked) != 1 || linked[0].Status != domain.TxCanceled {
		t.Fatalf("expected canceled transaction, got %+v", linked)
	}

	if _, err := svc.ChangeSaleStatus(ctx, resp.SaleID, domain.SaleStatusRequest{Status: domain.PaymentPaid}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected canceled sale to be final, got %v", err)
	}
	again, err := svc.ChangeSaleStatus(ctx, resp.SaleID, domain.SaleStatusRequest{Status: domain.PaymentCanceled})
	if err != nil || again.PaymentStatus != domain.PaymentCanceled {
		t.Fatalf("expected repeated cancel to be a no-op, got %v", err)
	}
	current, _ = repo.Books().Get(ctx, book.ID)
	if current.Quantity != 4 {
		t.Fatalf("repeated cancel must not reverse twice, got %d", current.Quantity)
	}
}

func TestConcurrentCancelReversesStockOnce(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	ctx := operatorCtx()
	book := createBook(t, repo, "Livro", "15.00", 4)

	resp, err := svc.FinalizeSale(ctx, domain.CheckoutRequest{
		PaymentMethod: "cash",
		Lines:         []domain.CheckoutLine{{BookID: book.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := svc.ChangeSaleStatus(ctx, resp.SaleID, domain.SaleStatusRequest{Status: domain.PaymentCanceled})
			if err == nil && sale.PaymentStatus != domain.PaymentCanceled {
				err = errors.New("sale not canceled: " + sale.PaymentStatus)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
	}

	current, _ := repo.Books().Get(ctx, book.ID)
	if current.Quantity != 4 {
		t.Fatalf("expected stock restored once to 4, got %d", current.Quantity)
	}
	reversals, _ := repo.ListStockMovements(ctx, store.Query{Filters: map[string]string{"reason": domain.ReasonReversal}})
	if len(reversals) != 1 {
		t.Fatalf("expected one reversal movement, got %d", len(reversals))
	}
}

func TestTransitionSaleStatusRejectsStaleStatus(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	sale, err := repo.Sales().Create(ctx, domain.Sale{OperatorID: "operator", PaymentStatus: domain.PaymentPaid})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := repo.TransitionSaleStatus(ctx, sale.ID, domain.PaymentPaid, domain.PaymentCanceled); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if _, err := repo.TransitionSaleStatus(ctx, sale.ID, domain.PaymentPaid, domain.PaymentCanceled); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on stale status, got %v", err)
	}
	if _, err := repo.TransitionSaleStatus(ctx, "missing", domain.PaymentPaid, domain.PaymentCanceled); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// Marking an unlinked sale paid creates a confirmed transaction for it.
func TestMarkPaidWithoutLinkedTransactionSynthesizesOne(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	ctx := operatorCtx()

	sale, err := repo.Sales().Create(ctx, domain.Sale{
		OperatorID:    "operator",
		Total:         money("42.00"),
		PaymentMethod: "boleto",
		PaymentStatus: domain.PaymentPending,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if _, err := svc.ChangeSaleStatus(ctx, sale.ID, domain.SaleStatusRequest{Status: domain.PaymentPaid}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	linked, _ := repo.FinancialTransactions().List(ctx, store.Query{Filters: map[string]string{"link_id": sale.ID}})
	if len(linked) != 1 || linked[0].Status != domain.TxConfirmed || !linked[0].Amount.Equal(money("42")) {
		t.Fatalf("expected synthesized confirmed transaction, got %+v", linked)
	}

	if _, err := svc.ChangeSaleStatus(ctx, sale.ID, domain.SaleStatusRequest{Status: domain.PaymentPending}); err != nil {
		t.Fatalf("mark pending: %v", err)
	}
	linked, _ = repo.FinancialTransactions().List(ctx, store.Query{Filters: map[string]string{"link_id": sale.ID}})
	if len(linked) != 1 || linked[0].Status != domain.TxPending {
		t.Fatalf("expected linked transaction back to pending, got %+v", linked)
	}
}

func TestGenerateRecurringMonthlyKeepsDueGap(t *testing.T) {
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	out, err := GenerateRecurring(domain.FinancialTransaction{
		Description: "Aluguel",
		Amount:      money("1500"),
		Type:        domain.TxExpense,
		Date:        date,
		DueDate:     &due,
		Notes:       "contrato 12",
	}, PeriodicityMonthly, end)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(out))
	}
	for i, want := range []string{"2024-02-10", "2024-03-10", "2024-04-10"} {
		if got := out[i].Date.Format("2006-01-02"); got != want {
			t.Fatalf("installment %d dated %s, want %s", i, got, want)
		}
		if gap := out[i].DueDate.Sub(out[i].Date); gap != 10*24*time.Hour {
			t.Fatalf("installment %d due gap %v", i, gap)
		}
		if out[i].Notes != "contrato 12 (recurring installment - monthly)" {
			t.Fatalf("unexpected notes %q", out[i].Notes)
		}
	}
}

func TestGenerateRecurringCountMatchesWholeIntervals(t *testing.T) {
	start := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	monthEnd := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		start       time.Time
		periodicity string
		end         time.Time
		want        int
	}{
		{start, PeriodicityQuarterly, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), 3},
		{start, PeriodicityQuarterly, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), 4},
		{start, PeriodicitySemiannual, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), 4},
		{start, PeriodicityAnnual, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 0},
		{monthEnd, PeriodicityMonthly, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), 3},
		{monthEnd, PeriodicityMonthly, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tc := range cases {
		out, err := GenerateRecurring(domain.FinancialTransaction{Date: tc.start}, tc.periodicity, tc.end)
		if err != nil {
			t.Fatalf("%s: %v", tc.periodicity, err)
		}
		if len(out) != tc.want {
			t.Fatalf("%s until %s: expected %d, got %d", tc.periodicity, tc.end.Format("2006-01-02"), tc.want, len(out))
		}
		if want := MonthsBetween(tc.start, tc.end) / mustInterval(t, tc.periodicity); want != len(out) {
			t.Fatalf("%s: floor(months/interval)=%d but generated %d", tc.periodicity, want, len(out))
		}
	}

	if _, err := GenerateRecurring(domain.FinancialTransaction{Date: start}, "weekly", start); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid periodicity, got %v", err)
	}
}

func TestGenerateRecurringClampsToMonthEnd(t *testing.T) {
	base := domain.FinancialTransaction{Date: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)}
	out, err := GenerateRecurring(base, PeriodicityMonthly, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := []string{"2024-02-29", "2024-03-31", "2024-04-30"}
	if len(out) != len(want) {
		t.Fatalf("expected %d installments, got %d", len(want), len(out))
	}
	for i, tx := range out {
		if got := tx.Date.Format("2006-01-02"); got != want[i] {
			t.Fatalf("installment %d: expected %s, got %s", i, want[i], got)
		}
	}
}

func mustInterval(t *testing.T, periodicity string) int {
	t.Helper()
	n, err := IntervalMonths(periodicity)
	if err != nil {
		t.Fatalf("interval: %v", err)
	}
	return n
}

func TestCreateExpenseWithRecurrence(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)

	resp, err := svc.CreateExpense(operatorCtx(), domain.ExpenseRequest{
		Description: "Aluguel",
		Amount:      money("1500"),
		Date:        date,
		DueDate:     &due,
		Category:    "Aluguel",
		Recurrence:  &domain.Recurrence{Periodicity: PeriodicityMonthly, EndDate: time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if resp.Expense.Type != domain.TxExpense || resp.Expense.Status != domain.TxPending {
		t.Fatalf("unexpected base expense: %+v", resp.Expense)
	}
	if len(resp.Installments) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(resp.Installments))
	}
	all, _ := repo.FinancialTransactions().List(context.Background(), store.Query{Filters: map[string]string{"type": domain.TxExpense}})
	if len(all) != 4 {
		t.Fatalf("expected 4 stored expenses, got %d", len(all))
	}
}

// installmentRepo fails one installment date and refuses inserts whose
// context was canceled.
type installmentRepo struct {
	*memory.Store
	failDate string
}

func (r *installmentRepo) InsertFinancialTransactionDateSafe(ctx context.Context, tx domain.FinancialTransaction) (*domain.FinancialTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx.Date.Format("2006-01-02") == r.failDate {
		return nil, errors.New("insert rejected")
	}
	return r.Store.InsertFinancialTransactionDateSafe(ctx, tx)
}

func TestCreateExpenseKeepsInstallmentsAfterOneFails(t *testing.T) {
	repo := &installmentRepo{Store: memory.New(), failDate: "2024-02-10"}
	svc := newTestService(repo)

	resp, err := svc.CreateExpense(operatorCtx(), domain.ExpenseRequest{
		Description: "Aluguel",
		Amount:      money("1500"),
		Date:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Category:    "Aluguel",
		Recurrence:  &domain.Recurrence{Periodicity: PeriodicityMonthly, EndDate: time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)},
	})
	if err == nil {
		t.Fatalf("expected the failed installment to surface")
	}
	if len(resp.Installments) != 5 {
		t.Fatalf("expected the other 5 installments stored, got %d", len(resp.Installments))
	}
	all, _ := repo.FinancialTransactions().List(context.Background(), store.Query{Filters: map[string]string{"type": domain.TxExpense}})
	if len(all) != 6 {
		t.Fatalf("expected base plus 5 installments, got %d", len(all))
	}
}

func TestCreateExpenseRejectsShortRecurrence(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)

	_, err := svc.CreateExpense(operatorCtx(), domain.ExpenseRequest{
		Description: "Seguro",
		Amount:      money("300"),
		Date:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Recurrence:  &domain.Recurrence{Periodicity: PeriodicityQuarterly, EndDate: time.Date(2024, 4, 9, 0, 0, 0, 0, time.UTC)},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected minimum duration rejection, got %v", err)
	}
	all, _ := repo.FinancialTransactions().List(context.Background(), store.Query{})
	if len(all) != 0 {
		t.Fatalf("rejected request must not create anything, got %d", len(all))
	}
}

func TestChangeTransactionStatusTransitions(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	ctx := operatorCtx()

	resp, err := svc.CreateExpense(ctx, domain.ExpenseRequest{
		Description: "Energia",
		Amount:      money("210.40"),
		Date:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := resp.Expense.ID

	confirmed, err := svc.ChangeTransactionStatus(ctx, id, domain.TransactionStatusRequest{Status: domain.TxConfirmed})
	if err != nil || confirmed.Status != domain.TxConfirmed || confirmed.PaidDate == nil {
		t.Fatalf("expected confirmed with paid date, got %+v (%v)", confirmed, err)
	}
	if _, err := svc.ChangeTransactionStatus(ctx, id, domain.TransactionStatusRequest{Status: domain.TxPending}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected confirmed->pending to be rejected, got %v", err)
	}
	canceled, err := svc.ChangeTransactionStatus(ctx, id, domain.TransactionStatusRequest{Status: domain.TxCanceled})
	if err != nil || canceled.Status != domain.TxCanceled {
		t.Fatalf("expected canceled, got %+v (%v)", canceled, err)
	}
	if _, err := svc.ChangeTransactionStatus(ctx, id, domain.TransactionStatusRequest{Status: domain.TxConfirmed}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected canceled to be terminal, got %v", err)
	}
	if _, err := svc.ChangeTransactionStatus(ctx, "missing", domain.TransactionStatusRequest{Status: domain.TxCanceled}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestAttachReceiptEmbedsInlineWhenStorageDenied(t *testing.T) {
	repo := memory.NewSeeded()
	svc := newTestService(repo)
	ctx := operatorCtx()

	txs, _ := repo.FinancialTransactions().List(ctx, store.Query{})
	id := txs[0].ID

	resp, err := svc.AttachReceipt(ctx, id, "recibo.png", pngHeader)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !resp.Inline || !strings.HasPrefix(resp.ReceiptURL, "data:image/png;base64,") {
		t.Fatalf("expected inline data url, got %+v", resp)
	}
	stored, _ := repo.FinancialTransactions().Get(ctx, id)
	if stored.ReceiptURL != resp.ReceiptURL {
		t.Fatalf("expected receipt reference stored")
	}

	if _, err := svc.AttachReceipt(ctx, id, "notes.txt", []byte("plain text")); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected unsupported type rejection, got %v", err)
	}
	if _, err := svc.AttachReceipt(ctx, "missing", "r.png", pngHeader); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSalesTrend(t *testing.T) {
	cases := []struct {
		this, last string
		want       int
	}{
		{"150", "0", 0},
		{"0", "0", 0},
		{"150", "120", 25},
		{"100", "300", -67},
		{"87.5", "100", -12},
		{"101", "200", -49},
	}
	for _, tc := range cases {
		if got := SalesTrend(money(tc.this), money(tc.last)); got != tc.want {
			t.Fatalf("trend(%s, %s) = %d, want %d", tc.this, tc.last, got, tc.want)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-30 * time.Second), "just now"},
		{now.Add(-time.Minute), "1 minute ago"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-49 * time.Hour), "2 days ago"},
		{now.AddDate(0, 0, -45), "01/05/2024"},
	}
	for _, tc := range cases {
		if got := RelativeTime(tc.at, now); got != tc.want {
			t.Fatalf("RelativeTime(%v) = %q, want %q", tc.at, got, tc.want)
		}
	}
}

func TestDashboardAggregates(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for _, name := range []string{"A", "B", "C"} {
		c, err := repo.Customers().Create(ctx, domain.Customer{Name: name, Type: domain.CustomerIndividual, Status: domain.CustomerActive})
		if err != nil {
			t.Fatalf("create customer: %v", err)
		}
		ids = append(ids, c.ID)
	}

	sales := []domain.Sale{
		{CustomerID: ids[0], Total: money("100"), PaymentStatus: domain.PaymentPaid, CreatedAt: now.Add(-2 * time.Hour)},
		{CustomerID: ids[0], Total: money("50"), PaymentStatus: domain.PaymentPaid, CreatedAt: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)},
		{CustomerID: "", Total: money("999"), PaymentStatus: domain.PaymentCanceled, CreatedAt: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)},
		{CustomerID: ids[1], Total: money("120"), PaymentStatus: domain.PaymentPaid, CreatedAt: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)},
		{CustomerID: ids[2], Total: money("80"), PaymentStatus: domain.PaymentPaid, CreatedAt: now.AddDate(0, 0, -120)},
	}
	for _, sale := range sales {
		if _, err := repo.Sales().Create(ctx, sale); err != nil {
			t.Fatalf("create sale: %v", err)
		}
	}
	createBook(t, repo, "Baixo", "10", 2)
	createBook(t, repo, "Alto", "10", 30)

	summary, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !summary.Sales.Today.Equal(money("100")) || summary.Sales.TodayCount != 1 {
		t.Fatalf("unexpected today figures: %+v", summary.Sales)
	}
	if !summary.Sales.ThisMonth.Equal(money("150")) || !summary.Sales.LastMonth.Equal(money("120")) || summary.Sales.Trend != 25 {
		t.Fatalf("unexpected month figures: %+v", summary.Sales)
	}
	if summary.Customers.Total != 3 || summary.Customers.Active != 2 {
		t.Fatalf("expected 3 customers with 2 active, got %+v", summary.Customers)
	}
	if summary.Inventory.ProductCount != 2 || summary.Inventory.TotalUnits != 32 || summary.Inventory.LowStock != 1 {
		t.Fatalf("unexpected inventory: %+v", summary.Inventory)
	}
	if len(summary.Recent) != 5 || summary.Recent[0].RelativeTime != "2 hours ago" {
		t.Fatalf("unexpected recent activity: %+v", summary.Recent)
	}
}

func TestDashboardSeededLowStock(t *testing.T) {
	svc := newTestService(memory.NewSeeded())
	summary, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if summary.Inventory.LowStock != 3 || summary.Inventory.TotalUnits != 67 {
		t.Fatalf("unexpected seeded inventory: %+v", summary.Inventory)
	}
	if summary.Sales.Trend != 0 {
		t.Fatalf("expected zero trend without last month sales, got %d", summary.Sales.Trend)
	}
}

func TestEntityWritesInvalidateDashboard(t *testing.T) {
	repo := memory.NewSeeded()
	summaries := cache.NewMemoryDashboardCache()
	svc := New(repo, Options{Ledger: ledger.NewMemory(), Cache: summaries, CacheTTL: time.Minute})
	ctx := operatorCtx()

	writes := []func(){
		func() {
			svc.Entities().Books.Create(ctx, domain.Book{Title: "Vidas Secas", Author: "Graciliano Ramos", SellingPrice: money("38")})
		},
		func() {
			svc.Entities().Customers.Create(ctx, domain.Customer{Name: "Rita"})
		},
	}
	for i, write := range writes {
		if _, err := svc.Dashboard(ctx); err != nil {
			t.Fatalf("dashboard: %v", err)
		}
		if _, ok, _ := summaries.Get(ctx, cache.DashboardKey); !ok {
			t.Fatalf("write %d: expected summary cached", i)
		}
		write()
		if _, ok, _ := summaries.Get(ctx, cache.DashboardKey); ok {
			t.Fatalf("write %d: expected summary invalidated", i)
		}
	}
}
