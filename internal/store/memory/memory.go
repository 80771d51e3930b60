package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"livraria/backend/internal/domain"
	"livraria/backend/internal/store"
	"livraria/backend/internal/xid"
)

// Store is the sample-data rendition of the repository. Writes live for the
// lifetime of the process and are never synchronized to postgres.
type Store struct {
	books        *Table[domain.Book, *domain.Book]
	customers    *Table[domain.Customer, *domain.Customer]
	sales        *Table[domain.Sale, *domain.Sale]
	transactions *Table[domain.FinancialTransaction, *domain.FinancialTransaction]

	mu              sync.RWMutex
	saleItems       []domain.SaleItem
	movements       []domain.StockMovement
	profiles        map[string]domain.Profile
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return newStore(nil, nil, nil, map[string]domain.UserAccount{})
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	return newStore(seedBooks(now), seedCustomers(now), seedTransactions(now), seedUsers())
}

func newStore(books []domain.Book, customers []domain.Customer, transactions []domain.FinancialTransaction, users map[string]domain.UserAccount) *Store {
	return &Store{
		books:     NewTable[domain.Book, *domain.Book]("book", books...),
		customers: NewTable[domain.Customer, *domain.Customer]("customer", customers...),
		sales:     NewTable[domain.Sale, *domain.Sale]("sale"),
		transactions: NewTable[domain.FinancialTransaction, *domain.FinancialTransaction]("financial transaction", transactions...).
			WithUniqueKey(func(tx *domain.FinancialTransaction) string { return tx.ExternalRef }),
		saleItems:       make([]domain.SaleItem, 0, 64),
		movements:       make([]domain.StockMovement, 0, 128),
		profiles:        make(map[string]domain.Profile),
		usersByUsername: users,
	}
}

// seedUsers builds the initial in-memory user accounts for demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD;
// when unset, dev defaults are used with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"operator", operatorPwd, domain.RoleOperator},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Books() store.Table[domain.Book] { return s.books }

func (s *Store) Customers() store.Table[domain.Customer] { return s.customers }

func (s *Store) Sales() store.Table[domain.Sale] { return s.sales }

func (s *Store) FinancialTransactions() store.Table[domain.FinancialTransaction] {
	return s.transactions
}

func (s *Store) TransitionSaleStatus(_ context.Context, saleID string, from string, to string) (*domain.Sale, error) {
	return s.sales.Mutate(saleID, func(sale *domain.Sale) error {
		if sale.PaymentStatus != from {
			return fmt.Errorf("sale %s is %s, not %s: %w", saleID, sale.PaymentStatus, from, store.ErrConflict)
		}
		sale.PaymentStatus = to
		return nil
	})
}

func (s *Store) CreateSaleItems(_ context.Context, items []domain.SaleItem) ([]domain.SaleItem, error) {
	if len(items) == 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]domain.SaleItem, 0, len(items))
	for _, item := range items {
		if item.SaleID == "" || item.BookID == "" || item.Quantity < 1 {
			return nil, store.ErrInvalid
		}
		if item.ID == "" {
			item.ID = xid.New("")
		}
		created = append(created, item)
	}
	s.saleItems = append(s.saleItems, created...)
	return created, nil
}

func (s *Store) ListSaleItems(_ context.Context, saleID string) ([]domain.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.SaleItem, 0, 8)
	for _, item := range s.saleItems {
		if item.SaleID == saleID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	all, err := s.sales.List(ctx, store.Query{OrderBy: "created_at", Order: store.OrderDesc})
	if err != nil {
		return nil, err
	}
	result := make([]domain.Sale, 0, len(all))
	for _, sale := range all {
		if !sale.CreatedAt.Before(from) && sale.CreatedAt.Before(to) {
			result = append(result, sale)
		}
	}
	return result, nil
}

func (s *Store) AppendStockMovement(_ context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	if movement.BookID == "" || movement.Quantity < 1 {
		return nil, store.ErrInvalid
	}
	if movement.Direction != domain.DirectionIn && movement.Direction != domain.DirectionOut {
		return nil, store.ErrInvalid
	}

	movement.Stamp(xid.New(""), time.Now().UTC())

	s.mu.Lock()
	s.movements = append(s.movements, movement)
	s.mu.Unlock()

	created := movement
	return &created, nil
}

func (s *Store) ListStockMovements(_ context.Context, q store.Query) ([]domain.StockMovement, error) {
	s.mu.RLock()
	snapshot := make([]domain.StockMovement, len(s.movements))
	copy(snapshot, s.movements)
	s.mu.RUnlock()

	if q.OrderBy == "" {
		q.OrderBy = "created_at"
		q.Order = store.OrderDesc
	}
	return store.Apply[domain.StockMovement](snapshot, q)
}

func (s *Store) IncrementBookQuantity(_ context.Context, bookID string, delta int) (int, error) {
	updated, err := s.books.Mutate(bookID, func(b *domain.Book) error {
		b.Quantity += delta
		if b.Quantity < 0 {
			b.Quantity = 0
		}
		b.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated.Quantity, nil
}

func (s *Store) InsertFinancialTransactionDateSafe(ctx context.Context, tx domain.FinancialTransaction) (*domain.FinancialTransaction, error) {
	tx.Date = calendarDate(tx.Date)
	tx.DueDate = calendarDatePtr(tx.DueDate)
	tx.PaidDate = calendarDatePtr(tx.PaidDate)
	return s.transactions.Create(ctx, tx)
}

func (s *Store) UpsertProfile(_ context.Context, profile domain.Profile) error {
	if strings.TrimSpace(profile.ID) == "" {
		return store.ErrInvalid
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = profile
	return nil
}

func (s *Store) Profile(id string) (domain.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	return p, ok
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if strings.TrimSpace(user.Username) == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("username already exists")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func calendarDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func calendarDatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := calendarDate(*t)
	return &d
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
