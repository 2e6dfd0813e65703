// Package memstore is a process-local implementation of the ledger ports.
// Transactions are serialised and applied copy-on-commit, so a transaction
// that returns an error leaves no trace. It backs STORE_DRIVER=memory and the
// package tests.
//
// Every transaction copies the whole state, so its cost grows with the
// number of sales and movements held. Use it for tests and demos only.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
)

type state struct {
	medicines   map[int64]domain.MedicineStock
	movements   []domain.StockMovement
	sales       map[int64]domain.Sale
	creditSales map[int64]domain.CreditSale
	payments    []domain.CreditPayment
	users       map[int64]domain.User
	lastID      int64
}

func newState() *state {
	return &state{
		medicines:   map[int64]domain.MedicineStock{},
		sales:       map[int64]domain.Sale{},
		creditSales: map[int64]domain.CreditSale{},
		users:       map[int64]domain.User{},
	}
}

func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *state) clone() *state {
	c := &state{
		medicines:   make(map[int64]domain.MedicineStock, len(s.medicines)),
		movements:   slices.Clone(s.movements),
		sales:       make(map[int64]domain.Sale, len(s.sales)),
		creditSales: make(map[int64]domain.CreditSale, len(s.creditSales)),
		payments:    slices.Clone(s.payments),
		users:       make(map[int64]domain.User, len(s.users)),
		lastID:      s.lastID,
	}
	for id, m := range s.medicines {
		m.Units = slices.Clone(m.Units)
		c.medicines[id] = m
	}
	for id, sale := range s.sales {
		sale.Items = slices.Clone(sale.Items)
		c.sales[id] = sale
	}
	for id, cs := range s.creditSales {
		c.creditSales[id] = cs
	}
	for id, u := range s.users {
		c.users[id] = u
	}
	return c
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
	now  func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

var (
	_ ports.TxManager     = (*Store)(nil)
	_ ports.ActorResolver = (*Store)(nil)
	_ ports.SaleReader    = (*Store)(nil)
	_ ports.CreditReader  = (*Store)(nil)
	_ ports.StockReader   = (*Store)(nil)
	_ ports.UserFinder    = (*Store)(nil)
	_ ports.HealthChecker = (*Store)(nil)
)

// WithinTx runs fn against a private copy of the data and publishes it only
// when fn succeeds and ctx is still live.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.LedgerTx) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("memstore: transaction panicked: %v", p)
		}
	}()

	if err := fn(ctx, &ledgerTx{st: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func (s *Store) Health(ctx context.Context) error { return nil }

// AddMedicine inserts a catalog row and returns it with its id.
func (s *Store) AddMedicine(m domain.MedicineStock) domain.MedicineStock {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.st.nextID()
	m.Units = slices.Clone(m.Units)
	m.UpdatedAt = s.now()
	s.st.medicines[m.ID] = m
	return m
}

// AddUser inserts a user and returns it with its id.
func (s *Store) AddUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.st.nextID()
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	s.st.users[u.ID] = u
	return u
}

// CreateMedicine inserts a catalog row unless the business already has a
// medicine with the same name.
func (s *Store) CreateMedicine(ctx context.Context, m domain.MedicineStock) (*domain.MedicineStock, error) {
	s.mu.Lock()
	if s.nameTaken(m.BusinessID, m.Name, 0) {
		s.mu.Unlock()
		return nil, domain.ErrMedicineExists
	}
	s.mu.Unlock()
	created := s.AddMedicine(m)
	return &created, nil
}

// UpdateMedicine replaces the catalog fields of an existing row. Quantity is
// left alone; it only changes through the ledger.
func (s *Store) UpdateMedicine(ctx context.Context, m domain.MedicineStock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.st.medicines[m.ID]
	if !ok || cur.BusinessID != m.BusinessID {
		return &domain.MedicineNotFoundError{MedicineID: m.ID}
	}
	if s.nameTaken(m.BusinessID, m.Name, m.ID) {
		return domain.ErrMedicineExists
	}
	m.Quantity = cur.Quantity
	m.Units = slices.Clone(m.Units)
	m.UpdatedAt = s.now()
	s.st.medicines[m.ID] = m
	return nil
}

func (s *Store) nameTaken(businessID int64, name string, exceptID int64) bool {
	for id, m := range s.st.medicines {
		if id != exceptID && m.BusinessID == businessID && strings.EqualFold(m.Name, name) {
			return true
		}
	}
	return false
}

// Medicine returns the committed catalog row.
func (s *Store) Medicine(id int64) (domain.MedicineStock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.st.medicines[id]
	return m, ok
}

func (s *Store) SaleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.sales)
}

func (s *Store) AllMovements() []domain.StockMovement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.movements)
}

func (s *Store) AllCreditPayments() []domain.CreditPayment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.payments)
}

func (s *Store) DisplayName(ctx context.Context, scope domain.Scope, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.users[userID]
	if !ok || u.BusinessID != scope.BusinessID {
		return "", fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	return u.Name, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.st.users {
		if u.Email == email && u.DeletedAt == nil {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) GetSale(ctx context.Context, scope domain.Scope, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.st.sales[id]
	if !ok || sale.BusinessID != scope.BusinessID {
		return nil, domain.ErrSaleNotFound
	}
	sale.Items = slices.Clone(sale.Items)
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, scope domain.Scope, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Sale
	for _, sale := range s.st.sales {
		if sale.BusinessID != scope.BusinessID {
			continue
		}
		sale.Items = slices.Clone(sale.Items)
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return truncate(out, limit), nil
}

func (s *Store) GetCreditSale(ctx context.Context, scope domain.Scope, id int64) (*domain.CreditSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.st.creditSales[id]
	if !ok || cs.BusinessID != scope.BusinessID {
		return nil, domain.ErrCreditSaleNotFound
	}
	return &cs, nil
}

func (s *Store) ListCreditSales(ctx context.Context, scope domain.Scope, status domain.CreditStatus, limit int) ([]domain.CreditSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CreditSale
	for _, cs := range s.st.creditSales {
		if cs.BusinessID != scope.BusinessID || (status != "" && cs.Status != status) {
			continue
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return truncate(out, limit), nil
}

func (s *Store) ListCreditPayments(ctx context.Context, scope domain.Scope, creditSaleID int64) ([]domain.CreditPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.st.creditSales[creditSaleID]
	if !ok || cs.BusinessID != scope.BusinessID {
		return nil, domain.ErrCreditSaleNotFound
	}
	var out []domain.CreditPayment
	for _, p := range s.st.payments {
		if p.CreditSaleID == creditSaleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ListMedicines(ctx context.Context, scope domain.Scope, limit int) ([]domain.MedicineStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.MedicineStock
	for _, m := range s.st.medicines {
		if m.BusinessID == scope.BusinessID {
			m.Units = slices.Clone(m.Units)
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return truncate(out, limit), nil
}

func (s *Store) ListMovements(ctx context.Context, scope domain.Scope, medicineID int64, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.StockMovement
	for i := len(s.st.movements) - 1; i >= 0; i-- {
		m := s.st.movements[i]
		if m.BusinessID != scope.BusinessID || (medicineID != 0 && m.MedicineID != medicineID) {
			continue
		}
		out = append(out, m)
	}
	return truncate(out, limit), nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
