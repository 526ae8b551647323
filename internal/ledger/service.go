// Package ledger is the service layer over the transaction store. It applies
// input defaults, serializes writes per user, and announces committed
// mutations to the event stream.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cashledger/internal/amqp"
	"cashledger/internal/core"
	"cashledger/internal/storage"
)

// EventPublisher is the outbound port for ledger events. Publishing happens
// after commit and is best-effort: the ledger itself never depends on it.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

type Service struct {
	store  *storage.Repository
	events EventPublisher // may be nil when no broker is configured
	locks  *userLocks

	// generations holds a per-user counter bumped on every committed
	// mutation; read-side caches fold it into their keys so a committed
	// write is never served stale.
	generations sync.Map // int64 -> *atomic.Uint64
}

func NewService(store *storage.Repository, events EventPublisher) *Service {
	return &Service{
		store:  store,
		events: events,
		locks:  newUserLocks(),
	}
}

// CreateInput carries the caller-supplied fields of a new transaction.
// Amount defaults to 1 and Timestamp to the current time when absent; an
// explicit timestamp is authoritative event time from then on.
type CreateInput struct {
	Amount     *int64
	Kind       core.Kind
	CategoryID *int64
	Timestamp  *time.Time
}

func (s *Service) CreateTransaction(ctx context.Context, user core.User, in CreateInput) (core.Transaction, error) {
	t := core.Transaction{
		UserID: user.ID,
		Amount: 1,
		Kind:   in.Kind,
	}
	if in.Amount != nil {
		t.Amount = *in.Amount
	}
	if in.CategoryID != nil {
		t.CategoryID = in.CategoryID
	}
	if in.Timestamp != nil {
		t.Timestamp = *in.Timestamp
	} else {
		t.Timestamp = time.Now()
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	lock := s.locks.get(user.ID)
	lock.Lock()
	created, err := s.store.CreateTransaction(ctx, t)
	if err == nil {
		s.bumpGeneration(user.ID)
	}
	lock.Unlock()
	if err != nil {
		return core.Transaction{}, err
	}

	s.publish(ctx, amqp.NewLedgerEvent(created.ID, user.ID, amqp.ActionCreated))
	return created, nil
}

func (s *Service) GetTransaction(ctx context.Context, user core.User, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, user.ID, id)
}

func (s *Service) UpdateTransaction(ctx context.Context, user core.User, id int64, patch core.TransactionPatch) (core.Transaction, error) {
	lock := s.locks.get(user.ID)
	lock.Lock()
	updated, err := s.store.UpdateTransaction(ctx, user.ID, id, patch)
	if err == nil {
		s.bumpGeneration(user.ID)
	}
	lock.Unlock()
	if err != nil {
		return core.Transaction{}, err
	}

	s.publish(ctx, amqp.NewLedgerEvent(updated.ID, user.ID, amqp.ActionUpdated))
	return updated, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, user core.User, id int64) error {
	lock := s.locks.get(user.ID)
	lock.Lock()
	err := s.store.DeleteTransaction(ctx, user.ID, id)
	if err == nil {
		s.bumpGeneration(user.ID)
	}
	lock.Unlock()
	if err != nil {
		return err
	}

	s.publish(ctx, amqp.NewLedgerEvent(id, user.ID, amqp.ActionDeleted))
	return nil
}

// ListTransactions returns the owner-scoped filtered listing. An empty result
// is a plain empty slice, never an error.
func (s *Service) ListTransactions(ctx context.Context, user core.User, f core.Filter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, user.ID, f)
}

// Balance reads the persisted derived balance. Users who never wrote anything
// read as zero.
func (s *Service) Balance(ctx context.Context, user core.User) (core.Balance, error) {
	return s.store.Balance(ctx, user.ID)
}

func (s *Service) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	return s.store.CreateCategory(ctx, name)
}

func (s *Service) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.store.ListCategories(ctx)
}

// DeleteCategory removes a category; transactions that referenced it survive
// with their category cleared. Balances are untouched, so no user lock is
// taken here.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.store.DeleteCategory(ctx, id)
}

// Generation returns the user's mutation counter for cache keying.
func (s *Service) Generation(userID int64) uint64 {
	if v, ok := s.generations.Load(userID); ok {
		return v.(*atomic.Uint64).Load()
	}
	return 0
}

func (s *Service) bumpGeneration(userID int64) {
	v, _ := s.generations.LoadOrStore(userID, &atomic.Uint64{})
	v.(*atomic.Uint64).Add(1)
}

func (s *Service) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, event); err != nil {
		// The mutation is already committed; the export worker's periodic
		// sweep picks up anything the stream misses.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"transaction_id", event.TransactionID,
			"user_id", event.UserID,
			"action", event.Action,
			"error", err)
	}
}
