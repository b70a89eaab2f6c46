package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"panel-service/internal/models"
	"panel-service/internal/repositories/postgresrepo"
	"panel-service/internal/repositories/redisrepo"
)

// fakeTx keeps the transactional state in memory so the reserve and
// refund flows can run end to end without postgres.
type fakeTx struct {
	user     *models.User
	liveCard bool

	statusErr   error
	insertOpErr error

	commits       int
	rollbacks     int
	insertedOps   []*models.Operation
	transactions  []models.Transaction
	activities    []models.ActivityEntry
	notifications []models.Notification
	statusUpdates []string
}

var _ postgresrepo.Tx = (*fakeTx)(nil)

func (f *fakeTx) Commit() error {
	f.commits++
	return nil
}

func (f *fakeTx) Rollback() error {
	f.rollbacks++
	return nil
}

func (f *fakeTx) LockUserForUpdate(ctx context.Context, userID string) (*models.User, error) {
	if f.user == nil || f.user.ID != userID {
		return nil, postgresrepo.ErrUserNotFound
	}
	return f.user, nil
}

func (f *fakeTx) LiveOperationExistsForCard(ctx context.Context, cardNumber string) (bool, error) {
	return f.liveCard, nil
}

func (f *fakeTx) UpdateBalances(ctx context.Context, userID string, balance, storeCredit int64) error {
	f.user.Balance = balance
	f.user.StoreCredit = storeCredit
	return nil
}

func (f *fakeTx) InsertOperation(ctx context.Context, op *models.Operation) error {
	if f.insertOpErr != nil {
		return f.insertOpErr
	}
	f.insertedOps = append(f.insertedOps, op)
	return nil
}

func (f *fakeTx) InsertTransaction(ctx context.Context, entry models.Transaction) error {
	f.transactions = append(f.transactions, entry)
	return nil
}

func (f *fakeTx) HasRefundForOperation(ctx context.Context, operationID string) (bool, error) {
	for _, entry := range f.transactions {
		if entry.Type == models.TransactionTypeRefund && entry.OperationID != nil && *entry.OperationID == operationID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTx) GetDebitForOperation(ctx context.Context, operationID string) (*models.Transaction, error) {
	for _, entry := range f.transactions {
		if entry.Type == models.TransactionTypeOperationDeduct && entry.OperationID != nil && *entry.OperationID == operationID {
			debit := entry
			return &debit, nil
		}
	}
	return nil, errors.New("no debit entry")
}

func (f *fakeTx) GetOperationForUpdate(ctx context.Context, operationID string) (*models.Operation, error) {
	for _, op := range f.insertedOps {
		if op.ID == operationID {
			return op, nil
		}
	}
	return nil, postgresrepo.ErrOperationNotFound
}

func (f *fakeTx) UpdateOperationStatus(ctx context.Context, operationID, expectedStatus, newStatus string, message *string) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statusUpdates = append(f.statusUpdates, expectedStatus+"->"+newStatus)
	return nil
}

func (f *fakeTx) InsertActivity(ctx context.Context, entry models.ActivityEntry) error {
	f.activities = append(f.activities, entry)
	return nil
}

func (f *fakeTx) InsertNotification(ctx context.Context, n models.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

type appliedTransition struct {
	operationID    string
	expectedStatus string
	update         models.OperationUpdate
}

type fakeStore struct {
	tx            *fakeTx
	ops           map[string]*models.Operation
	user          *models.User
	stuck         []models.Operation
	listErr       error
	transitionErr error

	beginCalls   int
	getUserCalls int
	transitions  []appliedTransition
	lastStatuses []string
}

var _ OperationStore = (*fakeStore)(nil)

func (f *fakeStore) BeginTx(ctx context.Context) (postgresrepo.Tx, error) {
	f.beginCalls++
	return f.tx, nil
}

func (f *fakeStore) GetOperation(ctx context.Context, operationID string) (*models.Operation, error) {
	op, ok := f.ops[operationID]
	if !ok {
		return nil, postgresrepo.ErrOperationNotFound
	}
	return op, nil
}

func (f *fakeStore) ListStuck(ctx context.Context, statuses []string, cutoff time.Time) ([]models.Operation, error) {
	f.lastStatuses = statuses
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.stuck, nil
}

func (f *fakeStore) TransitionStatus(ctx context.Context, operationID, expectedStatus string, upd models.OperationUpdate) error {
	if f.transitionErr != nil {
		return f.transitionErr
	}
	f.transitions = append(f.transitions, appliedTransition{operationID, expectedStatus, upd})
	return nil
}

func (f *fakeStore) SubmitCaptchaSolution(ctx context.Context, operationID, solution string) error {
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	f.getUserCalls++
	if f.user == nil || f.user.ID != userID {
		return nil, postgresrepo.ErrUserNotFound
	}
	return f.user, nil
}

type fakeDispatcher struct {
	err  error
	sent []models.JobMessage
}

func (f *fakeDispatcher) SendJob(ctx context.Context, msg models.JobMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	snap    *models.BalanceSnapshot
	deleted []string
}

func (f *fakeCache) GetBalance(ctx context.Context, ownerID string) (models.BalanceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return models.BalanceSnapshot{}, redisrepo.ErrBalanceNotFound
	}
	return *f.snap, nil
}

func (f *fakeCache) SetBalance(ctx context.Context, ownerID string, snap models.BalanceSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = &snap
	return nil
}

func (f *fakeCache) DeleteBalance(ctx context.Context, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ownerID)
	return nil
}

type fakeLimiter struct {
	allow bool
}

func (f *fakeLimiter) Allow(ctx context.Context, principalID string) (bool, error) {
	return f.allow, nil
}

func newTestService(tx *fakeTx, store *fakeStore, dispatcher *fakeDispatcher, cache *fakeCache, limiter *fakeLimiter) *OperationService {
	store.tx = tx
	return NewOperationService(store, dispatcher, cache, limiter)
}

func testUser() *models.User {
	return &models.User{ID: "owner-1", Role: models.RoleUser, Balance: 2000, StoreCredit: 300}
}

func testPrincipal() models.Principal {
	return models.Principal{ID: "owner-1", Role: models.RoleUser}
}

func TestCreateRejectsDuplicateCard(t *testing.T) {
	tx := &fakeTx{user: testUser(), liveCard: true}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(tx, &fakeStore{user: tx.user}, dispatcher, &fakeCache{}, &fakeLimiter{allow: true})

	_, err := svc.Create(context.Background(), testPrincipal(), models.OperationCreateRequest{
		OperationType: models.OperationTypeCheck,
		CardNumber:    "1234567890",
	})
	if !errors.Is(err, ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
	if tx.commits != 0 {
		t.Fatalf("transaction committed despite duplicate card")
	}
	if len(dispatcher.sent) != 0 {
		t.Fatalf("job dispatched despite duplicate card")
	}
}

func TestCreateRejectsInsufficientFunds(t *testing.T) {
	tx := &fakeTx{user: &models.User{ID: "owner-1", Balance: 100, StoreCredit: 0}}
	svc := newTestService(tx, &fakeStore{user: tx.user}, &fakeDispatcher{}, &fakeCache{}, &fakeLimiter{allow: true})

	_, err := svc.Create(context.Background(), testPrincipal(), models.OperationCreateRequest{
		OperationType: models.OperationTypeRenew,
		CardNumber:    "1234567890",
		Duration:      1,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if tx.commits != 0 {
		t.Fatalf("transaction committed despite insufficient funds")
	}
	if tx.user.Balance != 100 {
		t.Fatalf("balance mutated on rejected create: %d", tx.user.Balance)
	}
}

func TestCreateRateLimited(t *testing.T) {
	store := &fakeStore{user: testUser()}
	svc := newTestService(&fakeTx{user: store.user}, store, &fakeDispatcher{}, &fakeCache{}, &fakeLimiter{allow: false})

	_, err := svc.Create(context.Background(), testPrincipal(), models.OperationCreateRequest{
		OperationType: models.OperationTypeCheck,
		CardNumber:    "1234567890",
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if store.beginCalls != 0 {
		t.Fatalf("transaction started for a rate-limited request")
	}
}

func TestCreateChargesAndDispatches(t *testing.T) {
	tx := &fakeTx{user: testUser()}
	dispatcher := &fakeDispatcher{}
	cache := &fakeCache{}
	svc := newTestService(tx, &fakeStore{user: tx.user}, dispatcher, cache, &fakeLimiter{allow: true})

	id, err := svc.Create(context.Background(), testPrincipal(), models.OperationCreateRequest{
		OperationType: models.OperationTypeRenew,
		CardNumber:    "1234567890",
		Duration:      1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.commits != 1 {
		t.Fatalf("commits: got %d, want 1", tx.commits)
	}

	// 1500 charged: 300 from store credit, 1200 from the wallet
	if tx.user.Balance != 800 || tx.user.StoreCredit != 0 {
		t.Fatalf("pools after charge: balance %d credit %d", tx.user.Balance, tx.user.StoreCredit)
	}
	if len(tx.transactions) != 1 || tx.transactions[0].Amount != 1200 {
		t.Fatalf("expected one debit of the wallet portion, got %+v", tx.transactions)
	}

	if len(dispatcher.sent) != 1 {
		t.Fatalf("jobs sent: got %d, want 1", len(dispatcher.sent))
	}
	if dispatcher.sent[0].OperationID != id {
		t.Fatalf("job operation id: got %s, want %s", dispatcher.sent[0].OperationID, id)
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.deleted) == 0 || cache.deleted[0] != "owner-1" {
		t.Fatalf("balance cache not invalidated: %v", cache.deleted)
	}
}

func TestCreateReversesChargeWhenDispatchFails(t *testing.T) {
	tx := &fakeTx{user: testUser()}
	dispatcher := &fakeDispatcher{err: errors.New("broker down")}
	svc := newTestService(tx, &fakeStore{user: tx.user}, dispatcher, &fakeCache{}, &fakeLimiter{allow: true})

	_, err := svc.Create(context.Background(), testPrincipal(), models.OperationCreateRequest{
		OperationType: models.OperationTypeRenew,
		CardNumber:    "1234567890",
		Duration:      1,
	})
	if !errors.Is(err, ErrDispatchFailure) {
		t.Fatalf("expected ErrDispatchFailure, got %v", err)
	}

	// Both pools restored to their pre-charge values
	if tx.user.Balance != 2000 || tx.user.StoreCredit != 300 {
		t.Fatalf("pools after reversal: balance %d credit %d", tx.user.Balance, tx.user.StoreCredit)
	}

	var refunds int
	for _, entry := range tx.transactions {
		if entry.Type == models.TransactionTypeRefund {
			refunds++
			if entry.Amount != 1200 {
				t.Fatalf("refund amount: got %d, want the wallet portion 1200", entry.Amount)
			}
		}
	}
	if refunds != 1 {
		t.Fatalf("refund entries: got %d, want 1", refunds)
	}

	if len(tx.statusUpdates) != 1 || tx.statusUpdates[0] != "PENDING->FAILED" {
		t.Fatalf("status updates: %v", tx.statusUpdates)
	}
}

func TestApplyEventRejectsInvalidTransition(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeTx{}, store, &fakeDispatcher{}, &fakeCache{}, &fakeLimiter{allow: true})

	err := svc.ApplyEvent(context.Background(), models.OperationEvent{
		OperationID:    "op-1",
		ExpectedStatus: models.OperationStatusCompleted,
		NewStatus:      models.OperationStatusProcessing,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(store.transitions) != 0 {
		t.Fatalf("transition applied despite rejection: %v", store.transitions)
	}
}

func TestApplyEventPropagatesStaleTransition(t *testing.T) {
	store := &fakeStore{transitionErr: postgresrepo.ErrStaleTransition}
	svc := newTestService(&fakeTx{}, store, &fakeDispatcher{}, &fakeCache{}, &fakeLimiter{allow: true})

	err := svc.ApplyEvent(context.Background(), models.OperationEvent{
		OperationID:    "op-1",
		ExpectedStatus: models.OperationStatusProcessing,
		NewStatus:      models.OperationStatusCompleting,
	})
	if !errors.Is(err, postgresrepo.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
}

func TestGetBalanceServesBothPoolsFromCache(t *testing.T) {
	store := &fakeStore{user: testUser()}
	cache := &fakeCache{snap: &models.BalanceSnapshot{Balance: 70, StoreCredit: 30}}
	svc := newTestService(&fakeTx{}, store, &fakeDispatcher{}, cache, &fakeLimiter{allow: true})

	resp, err := svc.GetBalance(context.Background(), testPrincipal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Balance != 70 || resp.StoreCredit != 30 {
		t.Fatalf("cached balance: got %d/%d, want 70/30", resp.Balance, resp.StoreCredit)
	}
	if store.getUserCalls != 0 {
		t.Fatalf("cache hit still read postgres %d times", store.getUserCalls)
	}
}

func TestGetBalanceFallsBackToStore(t *testing.T) {
	store := &fakeStore{user: testUser()}
	svc := newTestService(&fakeTx{}, store, &fakeDispatcher{}, &fakeCache{}, &fakeLimiter{allow: true})

	resp, err := svc.GetBalance(context.Background(), testPrincipal())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Balance != 2000 || resp.StoreCredit != 300 {
		t.Fatalf("balance from store: got %d/%d, want 2000/300", resp.Balance, resp.StoreCredit)
	}
	if store.getUserCalls != 1 {
		t.Fatalf("postgres reads: got %d, want 1", store.getUserCalls)
	}
}
