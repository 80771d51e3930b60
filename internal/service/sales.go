package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"livraria/backend/internal/domain"
	"livraria/backend/internal/store"
	"livraria/backend/internal/validation"
	"livraria/backend/internal/xid"
)

const unidentifiedCustomer = "unidentified customer"

type pricedLine struct {
	book domain.Book
	item domain.SaleItem
}

// FinalizeSale persists a sale and its downstream bookkeeping. Only the sale
// row and its line items are fatal; stock, movement and income writes are
// best-effort and surface as warnings.
func (s *Service) FinalizeSale(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	if err := validation.Struct(req); err != nil {
		return domain.CheckoutResponse{}, err
	}

	lines, total, err := s.priceLines(ctx, req.Lines)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if req.ExpectedTotal != nil && !req.ExpectedTotal.Equal(total) {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: total mismatch, expected %s computed %s", store.ErrInvalid, req.ExpectedTotal.StringFixed(2), total.StringFixed(2))
	}

	operator, err := s.resolveOperator(ctx, req.OperatorID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	role := domain.RoleOperator
	if actor, ok := ActorFromContext(ctx); ok && actor.Role != "" {
		role = actor.Role
	}
	if err := s.repo.UpsertProfile(ctx, domain.Profile{ID: operator, Username: operator, Role: role}); err != nil {
		log.Printf("[sales] WARN: profile upsert failed operator=%s: %v", operator, err)
	}

	sale, err := s.repo.Sales().Create(ctx, domain.Sale{
		CustomerID:    strings.TrimSpace(req.CustomerID),
		OperatorID:    operator,
		Total:         total,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentPaid,
		Notes:         strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.CheckoutResponse{}, fmt.Errorf("create sale: %w", err)
	}

	items := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		item := line.item
		item.SaleID = sale.ID
		items = append(items, item)
	}
	if _, err := s.repo.CreateSaleItems(ctx, items); err != nil {
		return domain.CheckoutResponse{}, fmt.Errorf("create sale items for sale %s: %w", sale.ID, err)
	}

	resp := domain.CheckoutResponse{SaleID: sale.ID, Total: total}

	for _, line := range lines {
		if line.item.Quantity > line.book.Quantity {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("book %s had %d on hand, sold %d", line.book.ID, line.book.Quantity, line.item.Quantity))
		}
		if _, _, err := s.moveStock(ctx, line.book.ID, domain.DirectionOut, line.item.Quantity, domain.ReasonSale, "sale "+sale.ID); err != nil {
			log.Printf("[sales] WARN: stock update failed sale=%s book=%s: %v", sale.ID, line.book.ID, err)
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("stock for book %s: %v", line.book.ID, err))
		}
	}

	customerName := s.customerName(ctx, sale.CustomerID)
	income := s.saleIncome(*sale, customerName)

	txID, err := s.recordIncome(ctx, income)
	if err != nil {
		log.Printf("[sales] WARN: income transaction failed sale=%s: %v", sale.ID, err)
		resp.Warnings = append(resp.Warnings, "financial transaction: "+err.Error())
	}

	verifiedID, warning := s.verifyIncome(ctx, *sale, income)
	if warning != "" {
		resp.Warnings = append(resp.Warnings, warning)
	}
	resp.TransactionID = defaultString(verifiedID, txID)

	s.logAudit(ctx, "sale_finalize", "sale", sale.ID, fmt.Sprintf("total=%s,payment=%s,lines=%d", total.StringFixed(2), sale.PaymentMethod, len(items)))
	s.invalidateDashboard(ctx)
	return resp, nil
}

// priceLines recomputes every line from the book's selling price. The
// client-supplied unit price is ignored.
func (s *Service) priceLines(ctx context.Context, lines []domain.CheckoutLine) ([]pricedLine, decimal.Decimal, error) {
	total := decimal.Zero
	priced := make([]pricedLine, 0, len(lines))
	for i, line := range lines {
		book, err := s.repo.Books().Get(ctx, line.BookID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, decimal.Zero, fmt.Errorf("%w: line %d references unknown book %s", store.ErrInvalid, i, line.BookID)
			}
			return nil, decimal.Zero, err
		}

		price := book.SellingPrice
		if line.UnitPrice != nil && !line.UnitPrice.Equal(price) {
			log.Printf("[sales] WARN: client unit price %s for book=%s ignored, using %s", line.UnitPrice.String(), book.ID, price.String())
		}

		gross := price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		if line.Discount.IsNegative() || line.Discount.GreaterThan(gross) {
			return nil, decimal.Zero, fmt.Errorf("%w: line %d discount %s outside [0, %s]", store.ErrInvalid, i, line.Discount.String(), gross.StringFixed(2))
		}
		lineTotal := gross.Sub(line.Discount)
		total = total.Add(lineTotal)

		priced = append(priced, pricedLine{
			book: *book,
			item: domain.SaleItem{
				BookID:    book.ID,
				Quantity:  line.Quantity,
				UnitPrice: price,
				Discount:  line.Discount,
				LineTotal: lineTotal,
			},
		})
	}
	return priced, total, nil
}

// resolveOperator prefers the session identity over the one in the request.
func (s *Service) resolveOperator(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		if requested == "" {
			return "", fmt.Errorf("%w: operator identity required", store.ErrInvalid)
		}
		return requested, nil
	}
	if requested != "" && requested != actor.Username {
		log.Printf("[sales] WARN: operator mismatch request=%s session=%s, using session", requested, actor.Username)
	}
	return actor.Username, nil
}

func (s *Service) customerName(ctx context.Context, customerID string) string {
	if customerID == "" {
		return unidentifiedCustomer
	}
	customer, err := s.repo.Customers().Get(ctx, customerID)
	if err != nil || strings.TrimSpace(customer.Name) == "" {
		if err != nil {
			log.Printf("[sales] WARN: customer lookup failed id=%s: %v", customerID, err)
		}
		return unidentifiedCustomer
	}
	return customer.Name
}

func saleExternalRef(saleID string) string {
	return "sale:" + saleID
}

func (s *Service) saleIncome(sale domain.Sale, customerName string) domain.FinancialTransaction {
	now := s.now()
	return domain.FinancialTransaction{
		Description:   fmt.Sprintf("Sale #%s - %s", xid.Short(sale.ID), customerName),
		Amount:        sale.Total,
		Type:          domain.TxIncome,
		Date:          now,
		PaidDate:      &now,
		Category:      domain.SalesCategory,
		Status:        domain.TxConfirmed,
		PaymentMethod: sale.PaymentMethod,
		LinkID:        sale.ID,
		LinkType:      domain.LinkSale,
		ExternalRef:   saleExternalRef(sale.ID),
	}
}

// recordIncome tries the date-safe insert first and the generic entity create
// second.
func (s *Service) recordIncome(ctx context.Context, income domain.FinancialTransaction) (string, error) {
	created, err := s.repo.InsertFinancialTransactionDateSafe(ctx, income)
	if err == nil {
		return created.ID, nil
	}
	log.Printf("[sales] WARN: date-safe insert failed ref=%s, using generic create: %v", income.ExternalRef, err)

	res := s.entities.Transactions.Create(ctx, income)
	if !res.OK() {
		return "", res.Err()
	}
	return res.Data.ID, nil
}

// verifyIncome re-reads the sale's linked transactions after the configured
// delay. When none is visible a second write goes through the store, relying
// on the external ref to deduplicate, and lands in the local ledger if the
// store refuses it.
func (s *Service) verifyIncome(ctx context.Context, sale domain.Sale, income domain.FinancialTransaction) (string, string) {
	if err := s.sleep(ctx, s.verifyDelay); err != nil {
		return "", "verification skipped: " + err.Error()
	}

	linked, err := s.linkedTransactions(ctx, sale.ID)
	if err == nil && len(linked) > 0 {
		return linked[0].ID, ""
	}
	if err != nil {
		log.Printf("[sales] WARN: verification read failed sale=%s: %v", sale.ID, err)
	} else {
		log.Printf("[sales] WARN: no transaction visible for sale=%s, issuing secondary write", sale.ID)
	}

	secondary := income
	secondary.ID = ""
	secondary.Notes = strings.TrimSpace(secondary.Notes + " (secondary write)")
	created, err := s.repo.FinancialTransactions().Create(ctx, secondary)
	if err == nil {
		return created.ID, ""
	}

	log.Printf("[sales] WARN: secondary write failed sale=%s, writing local ledger: %v", sale.ID, err)
	secondary.ID = xid.New("")
	secondary.CreatedAt = s.now()
	secondary.LinkPath = secondary.Path()
	if err := s.ledger.Append(ctx, secondary); err != nil {
		log.Printf("[sales] WARN: local ledger write failed sale=%s: %v", sale.ID, err)
		return "", "financial transaction could not be recorded"
	}
	return secondary.ID, "financial transaction recorded in local ledger"
}

func (s *Service) linkedTransactions(ctx context.Context, saleID string) ([]domain.FinancialTransaction, error) {
	return s.repo.FinancialTransactions().List(ctx, store.Query{Filters: map[string]string{
		"link_id":   saleID,
		"link_type": domain.LinkSale,
	}})
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.Sales().Get(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	items, err := s.repo.ListSaleItems(ctx, sale.ID)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Items = items
	return *sale, nil
}

// ChangeSaleStatus moves a sale between paid, pending and canceled. Canceling
// returns stock and cancels linked transactions; marking a sale paid with no
// linked transaction synthesizes a confirmed one.
func (s *Service) ChangeSaleStatus(ctx context.Context, saleID string, req domain.SaleStatusRequest) (domain.Sale, error) {
	if err := validation.Struct(req); err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.PaymentStatus == req.Status {
		return sale, nil
	}
	if sale.PaymentStatus == domain.PaymentCanceled {
		return domain.Sale{}, fmt.Errorf("%w: sale %s is canceled", store.ErrInvalid, sale.ID)
	}

	updated, err := s.repo.TransitionSaleStatus(ctx, sale.ID, sale.PaymentStatus, req.Status)
	if errors.Is(err, store.ErrConflict) {
		// another request moved the sale first and ran the side effects
		if current, getErr := s.GetSale(ctx, sale.ID); getErr == nil && current.PaymentStatus == req.Status {
			return current, nil
		}
		return domain.Sale{}, err
	}
	if err != nil {
		return domain.Sale{}, err
	}
	updated.Items = sale.Items

	switch req.Status {
	case domain.PaymentCanceled:
		s.reverseStock(ctx, *updated)
		s.setLinkedStatus(ctx, updated.ID, domain.TxCanceled)
	case domain.PaymentPaid:
		if n := s.setLinkedStatus(ctx, updated.ID, domain.TxConfirmed); n == 0 {
			income := s.saleIncome(*updated, s.customerName(ctx, updated.CustomerID))
			if _, err := s.recordIncome(ctx, income); err != nil {
				log.Printf("[sales] WARN: could not synthesize transaction sale=%s: %v", updated.ID, err)
			}
		}
	case domain.PaymentPending:
		s.setLinkedStatus(ctx, updated.ID, domain.TxPending)
	}

	s.logAudit(ctx, "sale_status", "sale", updated.ID, fmt.Sprintf("from=%s,to=%s", sale.PaymentStatus, req.Status))
	s.invalidateDashboard(ctx)
	return *updated, nil
}

func (s *Service) reverseStock(ctx context.Context, sale domain.Sale) {
	for _, item := range sale.Items {
		if _, _, err := s.moveStock(ctx, item.BookID, domain.DirectionIn, item.Quantity, domain.ReasonReversal, "reversal of sale "+sale.ID); err != nil {
			log.Printf("[sales] WARN: stock reversal failed sale=%s book=%s: %v", sale.ID, item.BookID, err)
		}
	}
}

// setLinkedStatus updates every transaction linked to the sale and returns how
// many were found.
func (s *Service) setLinkedStatus(ctx context.Context, saleID string, status string) int {
	linked, err := s.linkedTransactions(ctx, saleID)
	if err != nil {
		log.Printf("[sales] WARN: linked transaction lookup failed sale=%s: %v", saleID, err)
		return 0
	}
	for _, tx := range linked {
		if tx.Status == status {
			continue
		}
		res := s.entities.Transactions.Patch(ctx, tx.ID, func(t *domain.FinancialTransaction) error {
			t.Status = status
			if status == domain.TxConfirmed && t.PaidDate == nil {
				today := s.now()
				t.PaidDate = &today
			}
			return nil
		})
		if !res.OK() {
			log.Printf("[sales] WARN: transaction %s status update to %s failed: %s", tx.ID, status, res.Error)
		}
	}
	return len(linked)
}
