package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"livraria/backend/internal/cache"
	"livraria/backend/internal/domain"
	"livraria/backend/internal/store"
	"livraria/backend/internal/xid"
)

const (
	activeCustomerWindow = 90 * 24 * time.Hour
	recentActivityLimit  = 5

	// TODO: derive customer and inventory trends from monthly snapshots once
	// the store keeps them.
	customerTrendPlaceholder  = 8
	inventoryTrendPlaceholder = -2
)

// Dashboard builds the summary figures. Each section is computed on its own
// and degrades to zero values when its reads fail.
func (s *Service) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	now := s.now()

	cached, ok, err := s.cache.Get(ctx, cache.DashboardKey)
	if err != nil {
		log.Printf("[dashboard] WARN: cache read failed: %v", err)
	}
	if ok && cached != nil {
		summary := *cached
		summary.Recent = withRelativeTime(summary.Recent, now)
		return summary, nil
	}

	summary := domain.DashboardSummary{GeneratedAt: now, Recent: []domain.Activity{}}
	var wg sync.WaitGroup
	wg.Go(func() {
		sales, err := s.salesSummary(ctx, now)
		if err != nil {
			log.Printf("[dashboard] WARN: sales summary failed: %v", err)
			sales = domain.SalesSummary{}
		}
		summary.Sales = sales
	})
	wg.Go(func() {
		customers, err := s.customerSummary(ctx, now)
		if err != nil {
			log.Printf("[dashboard] WARN: customer summary failed: %v", err)
			customers = domain.CustomerSummary{}
		}
		summary.Customers = customers
	})
	wg.Go(func() {
		inventory, err := s.inventorySummary(ctx)
		if err != nil {
			log.Printf("[dashboard] WARN: inventory summary failed: %v", err)
			inventory = domain.InventorySummary{}
		}
		summary.Inventory = inventory
	})
	wg.Go(func() {
		recent, err := s.recentActivity(ctx)
		if err != nil {
			log.Printf("[dashboard] WARN: recent activity failed: %v", err)
			recent = []domain.Activity{}
		}
		summary.Recent = recent
	})
	wg.Wait()

	if err := s.cache.Set(ctx, cache.DashboardKey, &summary, s.cacheTTL); err != nil {
		log.Printf("[dashboard] WARN: cache write failed: %v", err)
	}
	summary.Recent = withRelativeTime(summary.Recent, now)
	return summary, nil
}

func (s *Service) salesSummary(ctx context.Context, now time.Time) (domain.SalesSummary, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	today, err := s.repo.ListSalesBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return domain.SalesSummary{}, err
	}
	thisMonth, err := s.repo.ListSalesBetween(ctx, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return domain.SalesSummary{}, err
	}
	lastMonth, err := s.repo.ListSalesBetween(ctx, lastMonthStart, monthStart)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	todayTotal, todayCount := sumSales(today)
	thisTotal, _ := sumSales(thisMonth)
	lastTotal, _ := sumSales(lastMonth)
	return domain.SalesSummary{
		Today:      todayTotal,
		TodayCount: todayCount,
		ThisMonth:  thisTotal,
		LastMonth:  lastTotal,
		Trend:      SalesTrend(thisTotal, lastTotal),
	}, nil
}

func sumSales(sales []domain.Sale) (decimal.Decimal, int) {
	total := decimal.Zero
	count := 0
	for _, sale := range sales {
		if sale.PaymentStatus == domain.PaymentCanceled {
			continue
		}
		total = total.Add(sale.Total)
		count++
	}
	return total, count
}

// SalesTrend is the month-over-month change in percent, rounded half up, and
// 0 when there were no sales last month.
func SalesTrend(thisMonth decimal.Decimal, lastMonth decimal.Decimal) int {
	if lastMonth.IsZero() {
		return 0
	}
	pct := thisMonth.Sub(lastMonth).Div(lastMonth).Mul(decimal.NewFromInt(100))
	return int(pct.Add(decimal.NewFromFloat(0.5)).Floor().IntPart())
}

func (s *Service) customerSummary(ctx context.Context, now time.Time) (domain.CustomerSummary, error) {
	customers, err := s.repo.Customers().List(ctx, store.Query{})
	if err != nil {
		return domain.CustomerSummary{}, err
	}
	recent, err := s.repo.ListSalesBetween(ctx, now.Add(-activeCustomerWindow), now.Add(time.Second))
	if err != nil {
		return domain.CustomerSummary{}, err
	}
	return domain.CustomerSummary{
		Total:  len(customers),
		Active: ActiveCustomers(recent),
		Trend:  customerTrendPlaceholder,
	}, nil
}

// ActiveCustomers counts distinct customer references on the given sales.
func ActiveCustomers(sales []domain.Sale) int {
	seen := make(map[string]struct{}, len(sales))
	for _, sale := range sales {
		if sale.CustomerID == "" {
			continue
		}
		seen[sale.CustomerID] = struct{}{}
	}
	return len(seen)
}

func (s *Service) inventorySummary(ctx context.Context) (domain.InventorySummary, error) {
	books, err := s.repo.Books().List(ctx, store.Query{})
	if err != nil {
		return domain.InventorySummary{}, err
	}
	summary := domain.InventorySummary{ProductCount: len(books), Trend: inventoryTrendPlaceholder}
	for _, b := range books {
		summary.TotalUnits += b.Quantity
		if b.IsLowStock() {
			summary.LowStock++
		}
	}
	return summary, nil
}

func (s *Service) recentActivity(ctx context.Context) ([]domain.Activity, error) {
	sales, err := s.repo.Sales().List(ctx, store.Query{
		OrderBy:  "created_at",
		Order:    store.OrderDesc,
		Page:     1,
		PageSize: recentActivityLimit,
	})
	if err != nil {
		return nil, err
	}
	activity := make([]domain.Activity, 0, len(sales))
	for _, sale := range sales {
		activity = append(activity, domain.Activity{
			Kind:        "sale",
			ReferenceID: sale.ID,
			Description: fmt.Sprintf("Sale #%s (%s)", xid.Short(sale.ID), sale.PaymentStatus),
			Amount:      sale.Total,
			At:          sale.CreatedAt,
		})
	}
	return activity, nil
}

func withRelativeTime(activity []domain.Activity, now time.Time) []domain.Activity {
	out := make([]domain.Activity, len(activity))
	for i, a := range activity {
		a.RelativeTime = RelativeTime(a.At, now)
		out[i] = a
	}
	return out
}

// RelativeTime renders how long ago at was, falling back to a calendar date
// after 30 days.
func RelativeTime(at time.Time, now time.Time) string {
	elapsed := now.Sub(at)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return plural(int(elapsed/time.Minute), "minute")
	case elapsed < 24*time.Hour:
		return plural(int(elapsed/time.Hour), "hour")
	case elapsed < 30*24*time.Hour:
		return plural(int(elapsed/(24*time.Hour)), "day")
	}
	return at.Format("02/01/2006")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
