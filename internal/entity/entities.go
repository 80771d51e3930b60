package entity

import (
	"context"
	"strings"

	"livraria/backend/internal/domain"
	"livraria/backend/internal/store"
	"livraria/backend/internal/validation"
)

type (
	Books        = Service[domain.Book, *domain.Book]
	Customers    = Service[domain.Customer, *domain.Customer]
	Sales        = Service[domain.Sale, *domain.Sale]
	Transactions = Service[domain.FinancialTransaction, *domain.FinancialTransaction]
)

// Set bundles the entity services of one repository. onWrite, when set, runs
// after every successful write of any entity.
type Set struct {
	Books        *Books
	Customers    *Customers
	Sales        *Sales
	Transactions *Transactions
}

func NewSet(repo store.Repository, onWrite func(context.Context)) Set {
	return Set{
		Books: New[domain.Book, *domain.Book]("books", repo.Books(),
			WithNormalize[domain.Book](normalizeBook),
			WithValidate[domain.Book](func(b *domain.Book) error { return validation.Struct(*b) }),
			WithKept[domain.Book](keepBook),
			WithOnWrite[domain.Book, *domain.Book](onWrite),
		),
		Customers: New[domain.Customer, *domain.Customer]("customers", repo.Customers(),
			WithNormalize[domain.Customer](normalizeCustomer),
			WithValidate[domain.Customer](func(c *domain.Customer) error { return validation.Struct(*c) }),
			WithOnWrite[domain.Customer, *domain.Customer](onWrite),
		),
		Sales: New[domain.Sale, *domain.Sale]("sales", repo.Sales(),
			WithOnWrite[domain.Sale, *domain.Sale](onWrite),
		),
		Transactions: New[domain.FinancialTransaction, *domain.FinancialTransaction]("transactions", repo.FinancialTransactions(),
			WithNormalize[domain.FinancialTransaction](normalizeTransaction),
			WithValidate[domain.FinancialTransaction](func(t *domain.FinancialTransaction) error { return validation.Struct(*t) }),
			WithDecorate[domain.FinancialTransaction](func(t *domain.FinancialTransaction) { t.LinkPath = t.Path() }),
			WithKept[domain.FinancialTransaction](keepTransaction),
			WithOnWrite[domain.FinancialTransaction, *domain.FinancialTransaction](onWrite),
		),
	}
}

// keepBook leaves stock to movements so every change has its audit row.
func keepBook(stored *domain.Book, next *domain.Book) {
	next.Quantity = stored.Quantity
}

// keepTransaction leaves status to the transition rules and keeps the sale
// link and idempotency key intact.
func keepTransaction(stored *domain.FinancialTransaction, next *domain.FinancialTransaction) {
	next.Status = stored.Status
	next.ExternalRef = stored.ExternalRef
	next.LinkID = stored.LinkID
	next.LinkType = stored.LinkType
}

func normalizeBook(b *domain.Book) {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.ISBN = strings.TrimSpace(b.ISBN)
	b.Publisher = strings.TrimSpace(b.Publisher)
	b.Category = strings.TrimSpace(b.Category)
	if b.Quantity < 0 {
		b.Quantity = 0
	}
}

func normalizeCustomer(c *domain.Customer) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.State = strings.ToUpper(strings.TrimSpace(c.State))
	if c.Type == "" {
		c.Type = domain.CustomerIndividual
	}
	if c.Status == "" {
		c.Status = domain.CustomerActive
	}
}

func normalizeTransaction(t *domain.FinancialTransaction) {
	t.Description = strings.TrimSpace(t.Description)
	if t.Status == "" {
		t.Status = domain.TxPending
	}
	t.LinkPath = ""
}
