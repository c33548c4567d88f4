package withdrawals

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/starpoints/backend/internal/ledger"
	"github.com/starpoints/backend/internal/models"
	"github.com/starpoints/backend/internal/notify"
)

// ---------------------------------------------------------------------------
// In-memory mocks for TxRunner, Store and ledger.Service. The runner's mutex
// serializes "transactions" the way row locks do in Postgres, so the
// concurrency tests exercise the same interleavings the real store allows.
// ---------------------------------------------------------------------------

type mockRunner struct {
	mu sync.Mutex
}

func (m *mockRunner) RunInTx(_ context.Context, fn func(pgx.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(nil)
}

type acctState struct {
	balance int64
	locked  int64
}

type auditEntry struct {
	accountID int64
	amount    int64
	kind      string
}

type mockLedger struct {
	mu       sync.Mutex
	accounts map[int64]*acctState
	entries  []auditEntry
}

func newMockLedger() *mockLedger {
	return &mockLedger{accounts: make(map[int64]*acctState)}
}

func (m *mockLedger) get(id int64) *acctState {
	a, ok := m.accounts[id]
	if !ok {
		a = &acctState{}
		m.accounts[id] = a
	}
	return a
}

func (m *mockLedger) Credit(_ context.Context, _ pgx.Tx, accountID, amount int64, kind string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.get(accountID)
	a.balance += amount
	m.entries = append(m.entries, auditEntry{accountID, amount, kind})
	return a.balance, nil
}

func (m *mockLedger) Reserve(_ context.Context, _ pgx.Tx, accountID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.get(accountID)
	if a.balance-a.locked < amount {
		return ledger.ErrInsufficientFunds
	}
	a.locked += amount
	return nil
}

func (m *mockLedger) Settle(_ context.Context, _ pgx.Tx, accountID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.get(accountID)
	if a.locked < amount {
		return ledger.ErrInvariant
	}
	a.balance -= amount
	a.locked -= amount
	return nil
}

func (m *mockLedger) Release(_ context.Context, _ pgx.Tx, accountID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.get(accountID)
	if a.locked < amount {
		return ledger.ErrInvariant
	}
	a.locked -= amount
	return nil
}

func (m *mockLedger) AppendEntry(_ context.Context, _ pgx.Tx, accountID, amount int64, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, auditEntry{accountID, amount, kind})
	return nil
}

func (m *mockLedger) state(id int64) (balance, locked int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.get(id)
	return a.balance, a.locked
}

// invariantOK reports 0 <= locked <= balance for every account.
func (m *mockLedger) invariantOK() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.locked < 0 || a.locked > a.balance {
			return false
		}
	}
	return true
}

type mockStore struct {
	mu       sync.Mutex
	nextID   int64
	requests map[int64]*models.Withdrawal
	accounts map[int64]bool
}

func newMockStore(accountIDs ...int64) *mockStore {
	s := &mockStore{requests: make(map[int64]*models.Withdrawal), accounts: make(map[int64]bool)}
	for _, id := range accountIDs {
		s.accounts[id] = true
	}
	return s
}

func (s *mockStore) LockAccount(_ context.Context, _ pgx.Tx, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accounts[accountID] {
		return errAccountMissing
	}
	return nil
}

func (s *mockStore) HasPending(_ context.Context, _ pgx.Tx, accountID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.requests {
		if w.AccountID == accountID && w.Status == models.WithdrawalPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *mockStore) Insert(_ context.Context, _ pgx.Tx, accountID, amount int64, details string) (*models.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	w := &models.Withdrawal{
		ID:        s.nextID,
		AccountID: accountID,
		Amount:    amount,
		Details:   details,
		Status:    models.WithdrawalPending,
		CreatedAt: time.Now(),
	}
	s.requests[w.ID] = w
	cp := *w
	return &cp, nil
}

func (s *mockStore) GetForUpdate(_ context.Context, _ pgx.Tx, id int64) (*models.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (s *mockStore) MarkCompleted(_ context.Context, _ pgx.Tx, id int64, payoutRef uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.requests[id].Status = models.WithdrawalCompleted
	s.requests[id].PayoutRef = &payoutRef
	s.requests[id].ResolvedAt = &now
	return nil
}

func (s *mockStore) MarkRejected(_ context.Context, _ pgx.Tx, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.requests[id].Status = models.WithdrawalRejected
	s.requests[id].ResolvedAt = &now
	return nil
}

func (s *mockStore) ListByStatus(_ context.Context, status string) ([]*models.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Withdrawal
	for _, w := range s.requests {
		if w.Status == status {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const user int64 = 1001

// newService wires a Service against fresh mocks with the given balance and
// a withdrawal minimum of 1.
func newService(balance int64) (*Service, *mockLedger, *mockStore) {
	ml := newMockLedger()
	ml.get(user).balance = balance
	ms := newMockStore(user)
	svc := NewService(&mockRunner{}, ms, ml, nil, 1, nil)
	return svc, ml, ms
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateReservesAmount(t *testing.T) {
	svc, ml, _ := newService(10)
	ctx := context.Background()

	w, err := svc.Create(ctx, user, 6, "card 1234")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if w.Status != models.WithdrawalPending {
		t.Errorf("status: got %q, want pending", w.Status)
	}
	if w.Amount != 6 {
		t.Errorf("amount: got %d, want 6", w.Amount)
	}

	balance, locked := ml.state(user)
	if balance != 10 || locked != 6 {
		t.Errorf("after reserve: balance=%d locked=%d, want 10/6", balance, locked)
	}
}

func TestCreateBelowMinimum(t *testing.T) {
	ml := newMockLedger()
	ml.get(user).balance = 100
	svc := NewService(&mockRunner{}, newMockStore(user), ml, nil, 60, nil)

	if _, err := svc.Create(context.Background(), user, 59, ""); err != ErrBelowMinimum {
		t.Errorf("expected ErrBelowMinimum, got: %v", err)
	}
	if _, locked := ml.state(user); locked != 0 {
		t.Errorf("nothing should be reserved, locked=%d", locked)
	}
}

func TestCreateInsufficientFunds(t *testing.T) {
	svc, ml, ms := newService(10)
	ctx := context.Background()

	if _, err := svc.Create(ctx, user, 11, ""); err != ErrInsufficientFunds {
		t.Errorf("expected ErrInsufficientFunds, got: %v", err)
	}

	// Unknown account behaves like a zero balance.
	ms.accounts[2002] = false
	if _, err := svc.Create(ctx, 2002, 5, ""); err != ErrInsufficientFunds {
		t.Errorf("missing account: expected ErrInsufficientFunds, got: %v", err)
	}

	if !ml.invariantOK() {
		t.Error("ledger invariant violated")
	}
}

func TestCreateSecondPendingRejected(t *testing.T) {
	svc, ml, _ := newService(100)
	ctx := context.Background()

	if _, err := svc.Create(ctx, user, 10, ""); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(ctx, user, 10, ""); err != ErrAlreadyPending {
		t.Errorf("expected ErrAlreadyPending, got: %v", err)
	}

	_, locked := ml.state(user)
	if locked != 10 {
		t.Errorf("only the first request should reserve, locked=%d", locked)
	}
}

// Second request must draw against available, not balance: with 10 total and
// 6 reserved, a request for 5 fails even though 5 < 10.
func TestCreateChecksAvailableNotBalance(t *testing.T) {
	svc, ml, ms := newService(10)
	ctx := context.Background()

	first, err := svc.Create(ctx, user, 6, "")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	// Resolve the pending rule out of the way by using a fresh accounting:
	// mark the first request rejected in the store only, keeping the
	// reservation, to isolate the available check.
	ms.mu.Lock()
	ms.requests[first.ID].Status = models.WithdrawalRejected
	ms.mu.Unlock()

	if _, err := svc.Create(ctx, user, 5, ""); err != ErrInsufficientFunds {
		t.Errorf("expected ErrInsufficientFunds against available=4, got: %v", err)
	}
	if !ml.invariantOK() {
		t.Error("ledger invariant violated")
	}
}

// ---------------------------------------------------------------------------
// Approve / Reject
// ---------------------------------------------------------------------------

func TestApproveSettles(t *testing.T) {
	svc, ml, _ := newService(10)
	ctx := context.Background()

	w, err := svc.Create(ctx, user, 6, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	resolved, err := svc.Approve(ctx, w.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if resolved.Status != models.WithdrawalCompleted {
		t.Errorf("status: got %q, want completed", resolved.Status)
	}
	if resolved.PayoutRef == nil {
		t.Error("completed withdrawal should carry a payout reference")
	}

	balance, locked := ml.state(user)
	if balance != 4 || locked != 0 {
		t.Errorf("after settle: balance=%d locked=%d, want 4/0", balance, locked)
	}

	// Exactly one negative audit entry.
	ml.mu.Lock()
	defer ml.mu.Unlock()
	var settles int
	for _, e := range ml.entries {
		if e.kind == models.EntryKindWithdrawSettle {
			settles++
			if e.amount != -6 {
				t.Errorf("settle entry amount: got %d, want -6", e.amount)
			}
		}
	}
	if settles != 1 {
		t.Errorf("withdraw_settle entries: got %d, want 1", settles)
	}
}

func TestRejectRestoresAvailable(t *testing.T) {
	svc, ml, _ := newService(10)
	ctx := context.Background()

	w, err := svc.Create(ctx, user, 6, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	resolved, err := svc.Reject(ctx, w.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if resolved.Status != models.WithdrawalRejected {
		t.Errorf("status: got %q, want rejected", resolved.Status)
	}

	balance, locked := ml.state(user)
	if balance != 10 || locked != 0 {
		t.Errorf("after release: balance=%d locked=%d, want 10/0", balance, locked)
	}
}

func TestResolveTerminalStates(t *testing.T) {
	svc, _, _ := newService(10)
	ctx := context.Background()

	w, err := svc.Create(ctx, user, 6, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Approve(ctx, w.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if _, err := svc.Approve(ctx, w.ID); err != ErrAlreadyResolved {
		t.Errorf("second approve: expected ErrAlreadyResolved, got: %v", err)
	}
	if _, err := svc.Reject(ctx, w.ID); err != ErrAlreadyResolved {
		t.Errorf("reject after approve: expected ErrAlreadyResolved, got: %v", err)
	}
	if _, err := svc.Approve(ctx, 9999); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

// Full lifecycle: balance 10, withdraw 6, concurrent 5 fails, approve,
// then a request for the remaining 4 succeeds.
func TestWithdrawalLifecycle(t *testing.T) {
	svc, ml, _ := newService(10)
	ctx := context.Background()

	first, err := svc.Create(ctx, user, 6, "")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(ctx, user, 5, ""); err != ErrAlreadyPending {
		t.Fatalf("second create while pending: expected ErrAlreadyPending, got %v", err)
	}
	if _, err := svc.Approve(ctx, first.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	balance, locked := ml.state(user)
	if balance != 4 || locked != 0 {
		t.Fatalf("after approve: balance=%d locked=%d, want 4/0", balance, locked)
	}

	second, err := svc.Create(ctx, user, 4, "")
	if err != nil {
		t.Fatalf("create for remaining balance: %v", err)
	}
	if second.Amount != 4 {
		t.Errorf("amount: got %d, want 4", second.Amount)
	}
}

// ---------------------------------------------------------------------------
// Concurrency: many simultaneous create attempts must never overdraw.
// ---------------------------------------------------------------------------

func TestConcurrentCreatesNeverOverdraw(t *testing.T) {
	svc, ml, _ := newService(10)
	ctx := context.Background()

	const attempts = 8
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, user, 6, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var created int
	for err := range results {
		switch err {
		case nil:
			created++
		case ErrAlreadyPending, ErrInsufficientFunds:
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("exactly one request should be created, got %d", created)
	}

	balance, locked := ml.state(user)
	if locked != 6 || balance != 10 {
		t.Errorf("after racing creates: balance=%d locked=%d, want 10/6", balance, locked)
	}
	if !ml.invariantOK() {
		t.Error("ledger invariant violated")
	}
}

// ---------------------------------------------------------------------------
// Notification intents share the workflow transaction.
// ---------------------------------------------------------------------------

func TestNotificationsEnqueued(t *testing.T) {
	ml := newMockLedger()
	ml.get(user).balance = 100
	ms := newMockStore(user)

	var mu sync.Mutex
	var events []string
	insert := func(_ context.Context, _ pgx.Tx, args notify.SendNotificationArgs) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, args.Event)
		return nil
	}

	svc := NewService(&mockRunner{}, ms, ml, insert, 1, nil)
	ctx := context.Background()

	w, err := svc.Create(ctx, user, 10, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Reject(ctx, w.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	want := []string{notify.EventWithdrawalCreated, notify.EventWithdrawalResolved}
	if len(events) != len(want) {
		t.Fatalf("events: got %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, events[i], want[i])
		}
	}
}
