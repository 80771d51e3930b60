package domain

import "time"

// The Field methods expose json-named columns so filters and ordering behave
// the same on every store.

func (b *Book) RecordID() string { return b.ID }

func (b *Book) Stamp(id string, at time.Time) {
	if b.ID == "" {
		b.ID = id
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = at
	}
	b.UpdatedAt = at
}

func (b *Book) Identify(id string, createdAt time.Time) {
	b.ID = id
	b.CreatedAt = createdAt
}

func (b *Book) Field(name string) (any, bool) {
	switch name {
	case "id":
		return b.ID, true
	case "title":
		return b.Title, true
	case "author":
		return b.Author, true
	case "isbn":
		return b.ISBN, true
	case "publisher":
		return b.Publisher, true
	case "category":
		return b.Category, true
	case "purchase_price":
		return b.PurchasePrice, true
	case "selling_price":
		return b.SellingPrice, true
	case "quantity":
		return b.Quantity, true
	case "min_stock":
		return b.MinStock, true
	case "supplier_id":
		return b.SupplierID, true
	case "created_at":
		return b.CreatedAt, true
	case "updated_at":
		return b.UpdatedAt, true
	}
	return nil, false
}

func (c *Customer) RecordID() string { return c.ID }

func (c *Customer) Stamp(id string, at time.Time) {
	if c.ID == "" {
		c.ID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = at
	}
	c.UpdatedAt = at
}

func (c *Customer) Identify(id string, createdAt time.Time) {
	c.ID = id
	c.CreatedAt = createdAt
}

func (c *Customer) Field(name string) (any, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "name":
		return c.Name, true
	case "email":
		return c.Email, true
	case "phone":
		return c.Phone, true
	case "city":
		return c.City, true
	case "state":
		return c.State, true
	case "type":
		return c.Type, true
	case "status":
		return c.Status, true
	case "tax_id":
		return c.TaxID, true
	case "created_at":
		return c.CreatedAt, true
	case "updated_at":
		return c.UpdatedAt, true
	}
	return nil, false
}

func (s *Sale) RecordID() string { return s.ID }

func (s *Sale) Stamp(id string, at time.Time) {
	if s.ID == "" {
		s.ID = id
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = at
	}
}

func (s *Sale) Identify(id string, createdAt time.Time) {
	s.ID = id
	s.CreatedAt = createdAt
}

func (s *Sale) Field(name string) (any, bool) {
	switch name {
	case "id":
		return s.ID, true
	case "customer_id":
		return s.CustomerID, true
	case "operator_id":
		return s.OperatorID, true
	case "total":
		return s.Total, true
	case "payment_method":
		return s.PaymentMethod, true
	case "payment_status":
		return s.PaymentStatus, true
	case "created_at":
		return s.CreatedAt, true
	}
	return nil, false
}

func (m *StockMovement) RecordID() string { return m.ID }

func (m *StockMovement) Stamp(id string, at time.Time) {
	if m.ID == "" {
		m.ID = id
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = at
	}
}

func (m *StockMovement) Identify(id string, createdAt time.Time) {
	m.ID = id
	m.CreatedAt = createdAt
}

func (m *StockMovement) Field(name string) (any, bool) {
	switch name {
	case "id":
		return m.ID, true
	case "book_id":
		return m.BookID, true
	case "direction":
		return m.Direction, true
	case "quantity":
		return m.Quantity, true
	case "reason":
		return m.Reason, true
	case "actor":
		return m.Actor, true
	case "created_at":
		return m.CreatedAt, true
	}
	return nil, false
}

func (t *FinancialTransaction) RecordID() string { return t.ID }

func (t *FinancialTransaction) Stamp(id string, at time.Time) {
	if t.ID == "" {
		t.ID = id
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = at
	}
}

func (t *FinancialTransaction) Identify(id string, createdAt time.Time) {
	t.ID = id
	t.CreatedAt = createdAt
}

func (t *FinancialTransaction) Field(name string) (any, bool) {
	switch name {
	case "id":
		return t.ID, true
	case "description":
		return t.Description, true
	case "amount":
		return t.Amount, true
	case "type":
		return t.Type, true
	case "date":
		return t.Date, true
	case "due_date":
		return t.DueDate, true
	case "paid_date":
		return t.PaidDate, true
	case "category":
		return t.Category, true
	case "status":
		return t.Status, true
	case "payment_method":
		return t.PaymentMethod, true
	case "link_id":
		return t.LinkID, true
	case "link_type":
		return t.LinkType, true
	case "external_ref":
		return t.ExternalRef, true
	case "created_at":
		return t.CreatedAt, true
	}
	return nil, false
}
