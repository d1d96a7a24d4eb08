package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/ubhacking/commitboard/internal/errors"
	"github.com/ubhacking/commitboard/internal/models"
)

const (
	// Token ids are truncated to this length.
	idLength = 63

	// Events buffered per viewer before deliveries start dropping.
	eventBuffer = 16

	maxParallelDeliveries = 8
)

var broadcastDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "commitboard",
	Name:      "broadcast_deliveries_total",
	Help:      "Per-token broadcast delivery attempts, by outcome.",
}, []string{"status"})

var errSlowConsumer = errors.New("event buffer full")

// Token identifies one live dashboard viewer's push connection.
type Token struct {
	ID        string
	ExpiresAt time.Time
	events    chan []byte
}

// Events is the viewer's delivery handle; the SSE endpoint drains it.
func (t *Token) Events() <-chan []byte { return t.events }

func (t *Token) deliver(data []byte) error {
	select {
	case t.events <- data:
		return nil
	default:
		return errSlowConsumer
	}
}

// Store is the backing table for live tokens: a single keyed slot read and
// written whole, memcache-style. Implementations need no internal locking;
// the registry serializes every load-filter-append-save cycle.
type Store interface {
	Load() []*Token
	Save(tokens []*Token)
}

type memSlot struct {
	tokens []*Token
}

// NewMemSlot returns an in-memory token Store.
func NewMemSlot() Store { return &memSlot{} }

func (s *memSlot) Load() []*Token       { return s.tokens }
func (s *memSlot) Save(tokens []*Token) { s.tokens = tokens }

// Registry is the process-wide table of live viewer tokens. Issue, Live and
// Broadcast all prune expired entries as a side effect; pruned tokens are
// never resurrected.
type Registry struct {
	mu     sync.Mutex
	store  Store
	ttl    time.Duration
	logger *logrus.Logger

	now func() time.Time
}

func NewRegistry(store Store, ttl time.Duration, logger *logrus.Logger) *Registry {
	return &Registry{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Issue creates a token bound to the requester's origin and records it in the
// table. The id is current time plus origin, truncated; collisions are
// accepted as negligible and resolve last-write-wins.
func (r *Registry) Issue(origin string) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	id := fmt.Sprintf("%d%s", now.UnixNano(), origin)
	if len(id) > idLength {
		id = id[:idLength]
	}

	token := &Token{
		ID:        id,
		ExpiresAt: now.Add(r.ttl),
		events:    make(chan []byte, eventBuffer),
	}

	live := r.pruneLocked()
	live = append(live, token)
	r.store.Save(live)

	return token
}

// Live returns all unexpired tokens and rewrites the table with exactly that
// subset.
func (r *Registry) Live() []*Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.pruneLocked()
	r.store.Save(live)
	return live
}

// Resolve looks up a live token by id.
func (r *Registry) Resolve(id string) (*Token, bool) {
	for _, token := range r.Live() {
		if token.ID == id {
			return token, true
		}
	}
	return nil, false
}

// Broadcast serializes the message once and delivers it to every live token.
// A failed delivery is logged per token and never aborts the rest. Returns
// the number of successful deliveries.
func (r *Registry) Broadcast(msg models.Message) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s message: %w", msg.MessageNature(), err)
	}

	live := r.Live()

	var delivered int64
	g := new(errgroup.Group)
	g.SetLimit(maxParallelDeliveries)

	for _, token := range live {
		token := token
		g.Go(func() error {
			if err := token.deliver(data); err != nil {
				broadcastDeliveries.WithLabelValues("dropped").Inc()
				r.logger.Warnf("%v", apperrors.NewDeliveryError(token.ID, err))
				return nil
			}
			broadcastDeliveries.WithLabelValues("ok").Inc()
			atomic.AddInt64(&delivered, 1)
			return nil
		})
	}
	g.Wait()

	return int(delivered), nil
}

func (r *Registry) pruneLocked() []*Token {
	now := r.now()
	var live []*Token
	for _, token := range r.store.Load() {
		if now.Before(token.ExpiresAt) {
			live = append(live, token)
		}
	}
	return live
}
