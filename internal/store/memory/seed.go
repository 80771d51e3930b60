package memory

import (
	"time"

	"livraria/backend/internal/domain"
)

// Seed identities are stable so demo links survive restarts.
const (
	SeedBookDomCasmurro  = "7a0b8d0e-1f5b-4c1e-9c27-000000000001"
	SeedBookGrandeSertao = "7a0b8d0e-1f5b-4c1e-9c27-000000000002"
	SeedBookVidasSecas   = "7a0b8d0e-1f5b-4c1e-9c27-000000000003"
	SeedBookHoraEstrela  = "7a0b8d0e-1f5b-4c1e-9c27-000000000004"
	SeedBookMemorias     = "7a0b8d0e-1f5b-4c1e-9c27-000000000005"
	SeedBookCapitaes     = "7a0b8d0e-1f5b-4c1e-9c27-000000000006"

	SeedCustomerAna     = "4c9e2f6a-8d3b-4a7e-b1d2-000000000001"
	SeedCustomerEditora = "4c9e2f6a-8d3b-4a7e-b1d2-000000000002"
	SeedCustomerCarlos  = "4c9e2f6a-8d3b-4a7e-b1d2-000000000003"
)

func seedBooks(now time.Time) []domain.Book {
	three := 3
	ten := 10
	books := []domain.Book{
		{ID: SeedBookDomCasmurro, Title: "Dom Casmurro", Author: "Machado de Assis", ISBN: "978-85-359-0277-1", Publisher: "Penguin-Companhia", Category: "Romance", PurchasePrice: money("22.00"), SellingPrice: money("39.90"), Quantity: 18},
		{ID: SeedBookGrandeSertao, Title: "Grande Sertão: Veredas", Author: "João Guimarães Rosa", ISBN: "978-85-359-1139-1", Publisher: "Companhia das Letras", Category: "Romance", PurchasePrice: money("48.00"), SellingPrice: money("89.90"), Quantity: 6, MinStock: &ten},
		{ID: SeedBookVidasSecas, Title: "Vidas Secas", Author: "Graciliano Ramos", ISBN: "978-85-01-04200-2", Publisher: "Record", Category: "Romance", PurchasePrice: money("19.50"), SellingPrice: money("34.90"), Quantity: 4},
		{ID: SeedBookHoraEstrela, Title: "A Hora da Estrela", Author: "Clarice Lispector", ISBN: "978-85-325-0812-6", Publisher: "Rocco", Category: "Novela", PurchasePrice: money("17.00"), SellingPrice: money("29.90"), Quantity: 25},
		{ID: SeedBookMemorias, Title: "Memórias Póstumas de Brás Cubas", Author: "Machado de Assis", ISBN: "978-85-7232-144-9", Publisher: "Ateliê", Category: "Romance", PurchasePrice: money("20.00"), SellingPrice: money("36.50"), Quantity: 2, MinStock: &three},
		{ID: SeedBookCapitaes, Title: "Capitães da Areia", Author: "Jorge Amado", ISBN: "978-85-359-0408-9", Publisher: "Companhia de Bolso", Category: "Romance", PurchasePrice: money("24.00"), SellingPrice: money("44.90"), Quantity: 12},
	}
	for i := range books {
		books[i].CreatedAt = now
		books[i].UpdatedAt = now
	}
	return books
}

func seedCustomers(now time.Time) []domain.Customer {
	customers := []domain.Customer{
		{ID: SeedCustomerAna, Name: "Ana Souza", Email: "ana.souza@example.com", Phone: "(11) 98765-4321", Street: "Rua Augusta", Number: "1200", District: "Consolação", City: "São Paulo", State: "SP", ZipCode: "01304-001", Type: domain.CustomerIndividual, Status: domain.CustomerActive, TaxID: "52998224725"},
		{ID: SeedCustomerEditora, Name: "Colégio Horizonte Ltda", Email: "compras@horizonte.example.com", Phone: "(21) 3222-1100", Street: "Av. Rio Branco", Number: "45", District: "Centro", City: "Rio de Janeiro", State: "RJ", ZipCode: "20090-003", Type: domain.CustomerOrganization, Status: domain.CustomerActive, TaxID: "11222333000181"},
		{ID: SeedCustomerCarlos, Name: "Carlos Lima", Email: "carlos.lima@example.com", City: "Belo Horizonte", State: "MG", Type: domain.CustomerIndividual, Status: domain.CustomerInactive, TaxID: "11144477735"},
	}
	for i := range customers {
		customers[i].CreatedAt = now
		customers[i].UpdatedAt = now
	}
	return customers
}

func seedTransactions(now time.Time) []domain.FinancialTransaction {
	today := calendarDate(now)
	due := today.AddDate(0, 0, 10)
	return []domain.FinancialTransaction{
		{ID: "9d1f3b7c-2e4a-4f6b-8a9c-000000000001", Description: "Aluguel da loja", Amount: money("3500.00"), Type: domain.TxExpense, Date: today, DueDate: &due, Category: "Aluguel", Status: domain.TxPending, PaymentMethod: "transfer", CreatedAt: now},
		{ID: "9d1f3b7c-2e4a-4f6b-8a9c-000000000002", Description: "Reposição de estoque Record", Amount: money("780.00"), Type: domain.TxExpense, Date: today, PaidDate: &today, Category: "Fornecedores", Status: domain.TxConfirmed, PaymentMethod: "boleto", LinkType: domain.LinkPurchase, LinkID: "po-0001", CreatedAt: now},
	}
}
