package postgres

import (
	"database/sql"
	"time"

	"livraria/backend/internal/domain"
)

func scanBook(row scanner) (domain.Book, error) {
	var (
		b          domain.Book
		minStock   sql.NullInt64
		supplierID sql.NullString
	)
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Publisher, &b.Category, &b.PurchasePrice,
		&b.SellingPrice, &b.Quantity, &minStock, &supplierID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	if minStock.Valid {
		v := int(minStock.Int64)
		b.MinStock = &v
	}
	b.SupplierID = supplierID.String
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func bookValues(b *domain.Book) []any {
	var minStock any
	if b.MinStock != nil {
		minStock = *b.MinStock
	}
	return []any{b.Title, b.Author, b.ISBN, b.Publisher, b.Category, b.PurchasePrice,
		b.SellingPrice, b.Quantity, minStock, nullIfEmpty(b.SupplierID)}
}

func scanCustomer(row scanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Street, &c.Number, &c.District, &c.City,
		&c.State, &c.ZipCode, &c.Type, &c.Status, &c.TaxID, &c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, err
}

func customerValues(c *domain.Customer) []any {
	return []any{c.Name, c.Email, c.Phone, c.Street, c.Number, c.District, c.City,
		c.State, c.ZipCode, c.Type, c.Status, c.TaxID}
}

func scanSale(row scanner) (domain.Sale, error) {
	var (
		s          domain.Sale
		customerID sql.NullString
	)
	err := row.Scan(&s.ID, &customerID, &s.OperatorID, &s.Total, &s.PaymentMethod, &s.PaymentStatus, &s.Notes, &s.CreatedAt)
	s.CustomerID = customerID.String
	s.CreatedAt = s.CreatedAt.UTC()
	return s, err
}

func saleValues(s *domain.Sale) []any {
	return []any{nullIfEmpty(s.CustomerID), s.OperatorID, s.Total, s.PaymentMethod, s.PaymentStatus, s.Notes}
}

func scanMovement(row scanner) (domain.StockMovement, error) {
	var m domain.StockMovement
	err := row.Scan(&m.ID, &m.BookID, &m.Direction, &m.Quantity, &m.Reason, &m.Note, &m.Actor, &m.CreatedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}

func scanTransaction(row scanner) (domain.FinancialTransaction, error) {
	var (
		t           domain.FinancialTransaction
		dueDate     sql.NullTime
		paidDate    sql.NullTime
		externalRef sql.NullString
	)
	err := row.Scan(&t.ID, &t.Description, &t.Amount, &t.Type, &t.Date, &dueDate, &paidDate, &t.Category,
		&t.Status, &t.PaymentMethod, &t.LinkID, &t.LinkType, &t.ReceiptURL, &t.Notes, &externalRef, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	t.Date = t.Date.UTC()
	t.DueDate = nullTimePtr(dueDate)
	t.PaidDate = nullTimePtr(paidDate)
	t.ExternalRef = externalRef.String
	t.LinkPath = t.Path()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func transactionValues(t *domain.FinancialTransaction) []any {
	return []any{t.Description, t.Amount, t.Type, t.Date.Format(dateLayout), nullDate(t.DueDate), nullDate(t.PaidDate),
		t.Category, t.Status, t.PaymentMethod, t.LinkID, t.LinkType, t.ReceiptURL, t.Notes, nullIfEmpty(t.ExternalRef)}
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullDate(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
