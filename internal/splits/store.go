package splits

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tipsplit-backend/pkg/db"
	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tipsplit-backend/pkg/errors"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
	"github.com/angelmondragon/tipsplit-backend/pkg/metrics"
)

const defaultBacklogSize = 1024

// splitCache is the hot cache surface used by Store.
type splitCache interface {
	Get(ctx context.Context, paymentHash string) (*models.PaymentSplit, error)
	Set(ctx context.Context, split *models.PaymentSplit) error
	Fill(ctx context.Context, split *models.PaymentSplit) (bool, error)
	Delete(ctx context.Context, paymentHashes ...string) error
}

// StoreParams configure the hybrid store.
type StoreParams struct {
	Repo        Repository
	Cache       splitCache
	Logger      *logger.Logger
	Metrics     *metrics.CacheMetrics
	BacklogSize int
	Clock       func() time.Time
}

// Store composes the durable repository and the hot cache. The repository is
// authoritative; the cache may be stale or missing without affecting correctness
// because every state change is gated by the durable compare-and-swap.
type Store struct {
	repo    Repository
	cache   splitCache
	logg    *logger.Logger
	metrics *metrics.CacheMetrics
	backlog *invalidationBacklog
	now     func() time.Time
}

// NewStore builds the hybrid store. A nil Cache runs the store durable-only.
func NewStore(params StoreParams) (*Store, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("split repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		repo:    params.Repo,
		cache:   params.Cache,
		logg:    params.Logger,
		metrics: params.Metrics,
		backlog: newInvalidationBacklog(params.BacklogSize),
		now:     clock,
	}, nil
}

// Put persists a new split, then best-effort caches it.
func (s *Store) Put(ctx context.Context, split *models.PaymentSplit) error {
	if split == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "split is required")
	}
	if err := s.repo.Create(ctx, split); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("payment %s already registered", split.PaymentHash))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist split")
	}

	if s.cache == nil {
		return nil
	}
	if err := s.cache.Set(ctx, split); err != nil {
		s.cacheFailure(ctx, "put", split.PaymentHash, err)
	}
	return nil
}

// Get returns (nil, nil) when the payment is unknown.
func (s *Store) Get(ctx context.Context, paymentHash string) (*models.PaymentSplit, error) {
	useCache := s.cache != nil
	if useCache {
		s.flushBacklog(ctx)
		// A key still queued for eviction may hold a pre-transition snapshot.
		useCache = !s.backlog.contains(paymentHash)
	}

	if useCache {
		cached, err := s.cache.Get(ctx, paymentHash)
		if err != nil {
			s.cacheFailure(ctx, "get", paymentHash, err)
		} else if cached != nil {
			return cached, nil
		}
	}

	split, err := s.repo.FindByPaymentHash(ctx, paymentHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load split")
	}
	if split == nil || !useCache {
		return split, nil
	}

	if _, err := s.cache.Fill(ctx, split); err != nil {
		s.cacheFailure(ctx, "fill", paymentHash, err)
	}
	return split, nil
}

// UpdateStatus applies a compare-and-swap transition. It returns false without side
// effects when the stored status no longer equals expected or the payment is unknown.
func (s *Store) UpdateStatus(ctx context.Context, paymentHash string, expected, next enums.SplitStatus, processedAt *time.Time) (bool, error) {
	if !expected.CanTransition(next) {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("transition %s -> %s is not allowed", expected, next))
	}

	swapped, err := s.repo.CompareAndSwapStatus(ctx, paymentHash, expected, next, processedAt, s.now())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update split status")
	}
	if !swapped || s.cache == nil {
		return swapped, nil
	}

	s.refreshAfterTransition(ctx, paymentHash)
	return true, nil
}

// refreshAfterTransition overwrites the cached snapshot with the committed row. When
// that is not possible the entry is evicted, and failing that, queued for eviction.
func (s *Store) refreshAfterTransition(ctx context.Context, paymentHash string) {
	fresh, err := s.repo.FindByPaymentHash(ctx, paymentHash)
	if err == nil && fresh != nil {
		err = s.cache.Set(ctx, fresh)
		if err == nil {
			return
		}
	}
	if err != nil {
		s.cacheFailure(ctx, "refresh", paymentHash, err)
	}
	s.evict(ctx, paymentHash)
}

// Remove evicts the payment from the hot cache only. Durable rows are never deleted.
func (s *Store) Remove(ctx context.Context, paymentHash string) {
	if s.cache == nil {
		return
	}
	s.evict(ctx, paymentHash)
}

func (s *Store) evict(ctx context.Context, paymentHash string) {
	if err := s.cache.Delete(ctx, paymentHash); err != nil {
		s.cacheFailure(ctx, "delete", paymentHash, err)
		if dropped, ok := s.backlog.add(paymentHash); ok {
			dropCtx := s.logg.WithPaymentID(ctx, dropped)
			s.logg.Warn(dropCtx, "cache invalidation backlog full; dropped oldest entry")
		}
		s.metrics.SetBacklog(s.backlog.size())
	}
}

func (s *Store) flushBacklog(ctx context.Context) {
	pending := s.backlog.items()
	if len(pending) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, pending...); err != nil {
		s.metrics.IncFallback("flush")
		return
	}
	s.backlog.remove(pending)
	s.metrics.SetBacklog(s.backlog.size())
	s.logg.Info(s.logg.WithField(ctx, "evicted", len(pending)), "cache invalidation backlog flushed")
}

// AppendEvent records an audit event in the durable store only.
func (s *Store) AppendEvent(ctx context.Context, event *models.PaymentEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment event")
	}
	return nil
}

// Events returns the ordered audit trail for a payment.
func (s *Store) Events(ctx context.Context, paymentHash string) ([]models.PaymentEvent, error) {
	events, err := s.repo.ListEvents(ctx, paymentHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment events")
	}
	return events, nil
}

// ListStale returns splits stuck in one status since before the cutoff.
func (s *Store) ListStale(ctx context.Context, filter StaleFilter) ([]models.PaymentSplit, error) {
	rows, err := s.repo.ListStale(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale splits")
	}
	return rows, nil
}

func (s *Store) cacheFailure(ctx context.Context, op, paymentHash string, err error) {
	s.metrics.IncFallback(op)
	ctx = s.logg.WithPaymentID(ctx, paymentHash)
	ctx = s.logg.WithFields(ctx, map[string]any{"cache_op": op, "error": err.Error()})
	s.logg.Warn(ctx, "hot cache unavailable; continuing with durable store")
}
