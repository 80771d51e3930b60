// Package ledger is the last-resort write target for financial transactions
// the store failed to persist. Entries are kept as one JSON array.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"livraria/backend/internal/domain"
)

type Ledger interface {
	Append(ctx context.Context, tx domain.FinancialTransaction) error
	List(ctx context.Context) ([]domain.FinancialTransaction, error)
}

type Memory struct {
	mu      sync.Mutex
	entries []domain.FinancialTransaction
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, tx domain.FinancialTransaction) error {
	m.mu.Lock()
	m.entries = append(m.entries, tx)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) ([]domain.FinancialTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FinancialTransaction{}, m.entries...), nil
}

// File persists the array to disk, replacing the file atomically on append.
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Append(_ context.Context, tx domain.FinancialTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	entries = append(entries, tx)

	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *File) List(_ context.Context) ([]domain.FinancialTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *File) read() ([]domain.FinancialTransaction, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return []domain.FinancialTransaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return decode(raw)
}

func decode(raw []byte) ([]domain.FinancialTransaction, error) {
	if len(raw) == 0 {
		return []domain.FinancialTransaction{}, nil
	}
	var entries []domain.FinancialTransaction
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	if entries == nil {
		entries = []domain.FinancialTransaction{}
	}
	return entries, nil
}
