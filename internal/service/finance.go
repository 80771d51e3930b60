package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"livraria/backend/internal/domain"
	"livraria/backend/internal/storage"
	"livraria/backend/internal/store"
	"livraria/backend/internal/validation"
)

const (
	PeriodicityMonthly    = "monthly"
	PeriodicityQuarterly  = "quarterly"
	PeriodicitySemiannual = "semiannual"
	PeriodicityAnnual     = "annual"
)

// MaxReceiptBytes bounds receipt uploads.
const MaxReceiptBytes = 5 << 20

var allowedReceiptTypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif", "application/pdf"}

// IntervalMonths maps a periodicity to its step in calendar months.
func IntervalMonths(periodicity string) (int, error) {
	switch periodicity {
	case PeriodicityMonthly:
		return 1, nil
	case PeriodicityQuarterly:
		return 3, nil
	case PeriodicitySemiannual:
		return 6, nil
	case PeriodicityAnnual:
		return 12, nil
	}
	return 0, fmt.Errorf("%w: unknown periodicity %q", store.ErrInvalid, periodicity)
}

// MonthsBetween counts whole calendar months from start to end. A month step
// that lands past the end of a shorter month counts on its last day.
func MonthsBetween(start time.Time, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if months > 0 && addMonths(calendarDay(start), months).After(calendarDay(end)) {
		months--
	}
	return months
}

// addMonths steps t by whole calendar months, clamping the day to the last
// day of the target month so Jan 31 is followed by Feb 28 or 29.
func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	return time.Date(first.Year(), first.Month(), min(t.Day(), lastDay), 0, 0, 0, 0, time.UTC)
}

// GenerateRecurring returns the occurrences after base, one per interval while
// the occurrence date is not after end. Due dates keep the base day gap.
func GenerateRecurring(base domain.FinancialTransaction, periodicity string, end time.Time) ([]domain.FinancialTransaction, error) {
	interval, err := IntervalMonths(periodicity)
	if err != nil {
		return nil, err
	}

	gapDays := -1
	if base.DueDate != nil {
		gapDays = int(math.Round(calendarDay(*base.DueDate).Sub(calendarDay(base.Date)).Hours() / 24))
	}
	annotation := fmt.Sprintf("(recurring installment - %s)", periodicity)
	last := calendarDay(end)

	out := make([]domain.FinancialTransaction, 0, 12)
	for k := 1; ; k++ {
		date := addMonths(calendarDay(base.Date), k*interval)
		if date.After(last) {
			break
		}
		next := base
		next.ID = ""
		next.CreatedAt = time.Time{}
		next.ExternalRef = ""
		next.PaidDate = nil
		next.Status = domain.TxPending
		next.Date = date
		next.DueDate = nil
		if gapDays >= 0 {
			due := date.AddDate(0, 0, gapDays)
			next.DueDate = &due
		}
		next.Notes = strings.TrimSpace(base.Notes + " " + annotation)
		out = append(out, next)
	}
	return out, nil
}

func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CreateExpense stores the base expense and, for recurring requests, every
// following installment concurrently. Installments that were stored before a
// failure are kept.
func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (domain.ExpenseResponse, error) {
	if err := validation.Struct(req); err != nil {
		return domain.ExpenseResponse{}, err
	}
	if req.DueDate != nil && calendarDay(*req.DueDate).Before(calendarDay(req.Date)) {
		return domain.ExpenseResponse{}, fmt.Errorf("%w: due date before expense date", store.ErrInvalid)
	}
	if req.Recurrence != nil {
		interval, err := IntervalMonths(req.Recurrence.Periodicity)
		if err != nil {
			return domain.ExpenseResponse{}, err
		}
		if MonthsBetween(req.Date, req.Recurrence.EndDate) < interval {
			return domain.ExpenseResponse{}, fmt.Errorf("%w: recurrence must span at least %d month(s)", store.ErrInvalid, interval)
		}
	}

	status := domain.TxPending
	if req.PaidDate != nil {
		status = domain.TxConfirmed
	}
	base := domain.FinancialTransaction{
		Description:   strings.TrimSpace(req.Description),
		Amount:        req.Amount,
		Type:          domain.TxExpense,
		Date:          req.Date,
		DueDate:       req.DueDate,
		PaidDate:      req.PaidDate,
		Category:      strings.TrimSpace(req.Category),
		Status:        status,
		PaymentMethod: req.PaymentMethod,
		LinkID:        req.LinkID,
		LinkType:      req.LinkType,
		Notes:         strings.TrimSpace(req.Notes),
	}
	if err := validation.Struct(base); err != nil {
		return domain.ExpenseResponse{}, err
	}

	created, err := s.repo.InsertFinancialTransactionDateSafe(ctx, base)
	if err != nil {
		return domain.ExpenseResponse{}, fmt.Errorf("create expense: %w", err)
	}
	created.LinkPath = created.Path()
	resp := domain.ExpenseResponse{Expense: *created}

	if req.Recurrence != nil {
		installments, err := s.createInstallments(ctx, base, req.Recurrence.Periodicity, req.Recurrence.EndDate)
		resp.Installments = installments
		if err != nil {
			return resp, err
		}
	}

	s.logAudit(ctx, "expense_create", "transaction", created.ID, fmt.Sprintf("amount=%s,installments=%d", created.Amount.StringFixed(2), len(resp.Installments)))
	s.invalidateDashboard(ctx)
	return resp, nil
}

func (s *Service) createInstallments(ctx context.Context, base domain.FinancialTransaction, periodicity string, end time.Time) ([]domain.FinancialTransaction, error) {
	planned, err := GenerateRecurring(base, periodicity, end)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.FinancialTransaction, len(planned))
	var g errgroup.Group
	for i := range planned {
		g.Go(func() error {
			created, err := s.repo.InsertFinancialTransactionDateSafe(ctx, planned[i])
			if err != nil {
				return fmt.Errorf("installment %s: %w", planned[i].Date.Format("2006-01-02"), err)
			}
			created.LinkPath = created.Path()
			results[i] = created
			return nil
		})
	}
	err = g.Wait()

	stored := make([]domain.FinancialTransaction, 0, len(results))
	for _, r := range results {
		if r != nil {
			stored = append(stored, *r)
		}
	}
	return stored, err
}

var allowedTransitions = map[string][]string{
	domain.TxPending:   {domain.TxConfirmed, domain.TxCanceled},
	domain.TxConfirmed: {domain.TxCanceled},
}

func (s *Service) ChangeTransactionStatus(ctx context.Context, id string, req domain.TransactionStatusRequest) (domain.FinancialTransaction, error) {
	if err := validation.Struct(req); err != nil {
		return domain.FinancialTransaction{}, err
	}

	res := s.entities.Transactions.Patch(ctx, id, func(t *domain.FinancialTransaction) error {
		if t.Status == req.Status {
			return nil
		}
		if !slices.Contains(allowedTransitions[t.Status], req.Status) {
			return fmt.Errorf("%w: transaction cannot move from %s to %s", store.ErrInvalid, t.Status, req.Status)
		}
		t.Status = req.Status
		if req.Status == domain.TxConfirmed && t.PaidDate == nil {
			today := s.now()
			t.PaidDate = &today
		}
		return nil
	})
	tx, err := res.Unwrap()
	if err != nil {
		return domain.FinancialTransaction{}, err
	}
	s.logAudit(ctx, "transaction_status", "transaction", tx.ID, "to="+req.Status)
	s.invalidateDashboard(ctx)
	return tx, nil
}

// AttachReceipt uploads a receipt and stores its reference on the
// transaction. A storage permission denial embeds the file as a data URL.
func (s *Service) AttachReceipt(ctx context.Context, id string, filename string, data []byte) (domain.ReceiptResponse, error) {
	if len(data) == 0 || len(data) > MaxReceiptBytes {
		return domain.ReceiptResponse{}, fmt.Errorf("%w: receipt must be between 1 byte and %d bytes", store.ErrInvalid, MaxReceiptBytes)
	}
	mime := mimetype.Detect(data)
	if !mimetype.EqualsAny(mime.String(), allowedReceiptTypes...) {
		return domain.ReceiptResponse{}, fmt.Errorf("%w: unsupported receipt type %s", store.ErrInvalid, mime.String())
	}
	if _, err := s.repo.FinancialTransactions().Get(ctx, id); err != nil {
		return domain.ReceiptResponse{}, err
	}

	inline := false
	name := strings.TrimSuffix(filename, filepath.Ext(filename)) + mime.Extension()
	url, err := s.uploader.Upload(ctx, name, data)
	if err != nil {
		if !errors.Is(err, storage.ErrPermissionDenied) {
			return domain.ReceiptResponse{}, fmt.Errorf("upload receipt: %w", err)
		}
		log.Printf("[finance] WARN: receipt storage denied for transaction=%s, embedding inline: %v", id, err)
		url = "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(data)
		inline = true
	}

	res := s.entities.Transactions.Patch(ctx, id, func(t *domain.FinancialTransaction) error {
		t.ReceiptURL = url
		return nil
	})
	if _, err := res.Unwrap(); err != nil {
		return domain.ReceiptResponse{}, err
	}
	return domain.ReceiptResponse{TransactionID: id, ReceiptURL: url, Inline: inline}, nil
}

// LocalLedger lists transactions only recorded in the local fallback ledger.
func (s *Service) LocalLedger(ctx context.Context) ([]domain.FinancialTransaction, error) {
	return s.ledger.List(ctx)
}
