package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"livraria/backend/internal/domain"
	"livraria/backend/internal/store"
)

const dateLayout = "2006-01-02"

type Store struct {
	db *sql.DB

	books        *table[domain.Book, *domain.Book]
	customers    *table[domain.Customer, *domain.Customer]
	sales        *table[domain.Sale, *domain.Sale]
	transactions *table[domain.FinancialTransaction, *domain.FinancialTransaction]
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newStore(db), nil
}

func newStore(db *sql.DB) *Store {
	s := &Store{db: db}
	s.books = &table[domain.Book, *domain.Book]{
		db:       db,
		entity:   "book",
		relation: "books",
		columns: []string{"id", "title", "author", "isbn", "publisher", "category", "purchase_price",
			"selling_price", "quantity", "min_stock", "supplier_id", "created_at", "updated_at"},
		writable: []string{"title", "author", "isbn", "publisher", "category", "purchase_price",
			"selling_price", "quantity", "min_stock", "supplier_id"},
		touch:  true,
		scan:   scanBook,
		values: bookValues,
	}
	s.customers = &table[domain.Customer, *domain.Customer]{
		db:       db,
		entity:   "customer",
		relation: "customers",
		columns: []string{"id", "name", "email", "phone", "street", "number", "district", "city",
			"state", "zip_code", "type", "status", "tax_id", "created_at", "updated_at"},
		writable: []string{"name", "email", "phone", "street", "number", "district", "city",
			"state", "zip_code", "type", "status", "tax_id"},
		touch:  true,
		scan:   scanCustomer,
		values: customerValues,
	}
	s.sales = &table[domain.Sale, *domain.Sale]{
		db:       db,
		entity:   "sale",
		relation: "sales",
		columns:  []string{"id", "customer_id", "operator_id", "total", "payment_method", "payment_status", "notes", "created_at"},
		writable: []string{"customer_id", "operator_id", "total", "payment_method", "payment_status", "notes"},
		scan:     scanSale,
		values:   saleValues,
	}
	s.transactions = &table[domain.FinancialTransaction, *domain.FinancialTransaction]{
		db:       db,
		entity:   "financial transaction",
		relation: "financial_transactions",
		columns: []string{"id", "description", "amount", "type", "date", "due_date", "paid_date", "category",
			"status", "payment_method", "link_id", "link_type", "receipt_url", "notes", "external_ref", "created_at"},
		writable: []string{"description", "amount", "type", "date", "due_date", "paid_date", "category",
			"status", "payment_method", "link_id", "link_type", "receipt_url", "notes", "external_ref"},
		dates:  []string{"date", "due_date", "paid_date"},
		scan:   scanTransaction,
		values: transactionValues,
	}
	s.transactions.onConflict = func(ctx context.Context, tx *domain.FinancialTransaction) (*domain.FinancialTransaction, error) {
		return s.transactionByExternalRef(ctx, tx.ExternalRef)
	}
	return s
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Books() store.Table[domain.Book] { return s.books }

func (s *Store) Customers() store.Table[domain.Customer] { return s.customers }

func (s *Store) Sales() store.Table[domain.Sale] { return s.sales }

func (s *Store) FinancialTransactions() store.Table[domain.FinancialTransaction] {
	return s.transactions
}

func (s *Store) CreateSaleItems(ctx context.Context, items []domain.SaleItem) ([]domain.SaleItem, error) {
	if len(items) == 0 {
		return nil, store.ErrInvalid
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	created := make([]domain.SaleItem, 0, len(items))
	for _, item := range items {
		if item.SaleID == "" || item.BookID == "" || item.Quantity < 1 {
			return nil, store.ErrInvalid
		}
		err := dbTx.QueryRowContext(ctx, `
			INSERT INTO sale_items (sale_id, book_id, quantity, unit_price, discount, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, item.SaleID, item.BookID, item.Quantity, item.UnitPrice, item.Discount, item.LineTotal).Scan(&item.ID)
		if err != nil {
			if isForeignKeyViolation(err) || isInvalidText(err) {
				return nil, fmt.Errorf("%w: sale item references unknown sale or book", store.ErrInvalid)
			}
			return nil, err
		}
		created = append(created, item)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, book_id, quantity, unit_price, discount, line_total
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		if isInvalidText(err) {
			return []domain.SaleItem{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.BookID, &item.Quantity, &item.UnitPrice, &item.Discount, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, operator_id, total, payment_method, payment_status, notes, created_at
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) TransitionSaleStatus(ctx context.Context, saleID string, from string, to string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE sales SET payment_status = $3
		WHERE id = $1 AND payment_status = $2
		RETURNING id, customer_id, operator_id, total, payment_method, payment_status, notes, created_at
	`, saleID, from, to)
	sale, err := scanSale(row)
	if err == nil {
		return &sale, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, s.sales.mapErr(saleID, err)
	}
	if _, getErr := s.sales.Get(ctx, saleID); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("sale %s is no longer %s: %w", saleID, from, store.ErrConflict)
}

func (s *Store) AppendStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	if movement.BookID == "" || movement.Quantity < 1 {
		return nil, store.ErrInvalid
	}
	if movement.Direction != domain.DirectionIn && movement.Direction != domain.DirectionOut {
		return nil, store.ErrInvalid
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO stock_movements (book_id, direction, quantity, reason, note, actor)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at
	`, movement.BookID, movement.Direction, movement.Quantity, movement.Reason, movement.Note, movement.Actor).
		Scan(&movement.ID, &movement.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) || isInvalidText(err) {
			return nil, fmt.Errorf("book %s: %w", movement.BookID, store.ErrNotFound)
		}
		return nil, err
	}
	movement.CreatedAt = movement.CreatedAt.UTC()
	return &movement, nil
}

func (s *Store) ListStockMovements(ctx context.Context, q store.Query) ([]domain.StockMovement, error) {
	if q.OrderBy == "" {
		q.OrderBy = "created_at"
		q.Order = store.OrderDesc
	}
	movements := &table[domain.StockMovement, *domain.StockMovement]{
		db:       s.db,
		entity:   "stock movement",
		relation: "stock_movements",
		columns:  []string{"id", "book_id", "direction", "quantity", "reason", "note", "actor", "created_at"},
		scan:     scanMovement,
	}
	return movements.List(ctx, q)
}

func (s *Store) IncrementBookQuantity(ctx context.Context, bookID string, delta int) (int, error) {
	var quantity int
	err := s.db.QueryRowContext(ctx, `SELECT adjust_book_quantity($1, $2)`, bookID, delta).Scan(&quantity)
	if err != nil {
		if isNoDataFound(err) || isInvalidText(err) {
			return 0, fmt.Errorf("book %s: %w", bookID, store.ErrNotFound)
		}
		return 0, err
	}
	return quantity, nil
}

func (s *Store) InsertFinancialTransactionDateSafe(ctx context.Context, tx domain.FinancialTransaction) (*domain.FinancialTransaction, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT insert_financial_transaction($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		tx.Description, tx.Amount, tx.Type, formatDate(&tx.Date), formatDate(tx.DueDate), formatDate(tx.PaidDate),
		tx.Category, tx.Status, tx.PaymentMethod, tx.LinkID, tx.LinkType, tx.Notes, tx.ExternalRef,
	).Scan(&id)
	if err != nil {
		if isCheckViolation(err) {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalid, err)
		}
		return nil, err
	}
	return s.transactions.Get(ctx, id)
}

func (s *Store) transactionByExternalRef(ctx context.Context, ref string) (*domain.FinancialTransaction, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT %s FROM financial_transactions WHERE external_ref = $1", s.transactions.selectList()), ref)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("financial transaction %s: %w", ref, store.ErrNotFound)
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	if strings.TrimSpace(profile.ID) == "" {
		return store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, role, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (id)
		DO UPDATE SET username = EXCLUDED.username, role = EXCLUDED.role, updated_at = now()
	`, profile.ID, profile.Username, profile.Role)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username already exists", store.ErrInvalid)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalid
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return hasCode(err, "23505")
}

func isForeignKeyViolation(err error) bool {
	return hasCode(err, "23503")
}

func isCheckViolation(err error) bool {
	return hasCode(err, "23514")
}

// isInvalidText matches malformed uuid input, which callers treat as absent.
func isInvalidText(err error) bool {
	return hasCode(err, "22P02")
}

func isNoDataFound(err error) bool {
	return hasCode(err, "P0002")
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
