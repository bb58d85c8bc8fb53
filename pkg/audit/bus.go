package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/scrims-network/guildkeeper/pkg/observability"
)

// Kind identifies an audit event type
type Kind string

const (
	KindBanAdd     Kind = "ban_add"
	KindBanRemove  Kind = "ban_remove"
	KindRoleUpdate Kind = "role_update"
)

// Event is one normalized audit-log entry. EntryID is the platform's audit
// entry id when known; events without one get a generated id and are never
// deduplicated.
type Event struct {
	EntryID      string
	Kind         Kind
	GuildID      string
	TargetUserID string
	ExecutorID   string
	Reason       string

	// Role ids involved in a role_update, split by direction
	AddedRoleIDs   []string
	RemovedRoleIDs []string

	At time.Time
}

// Subscriber receives published audit events. Panics are recovered and
// logged, never propagated to the publisher.
type Subscriber func(Event)

const (
	dedupSize = 2048
	dedupTTL  = 10 * time.Minute
)

// Bus fans audit events out to subscribers, suppressing entries it has
// seen recently. Audit-log fetches overlap after reconnects; without the
// dedup window the synchronizer would react to the same entry twice.
type Bus struct {
	logger *observability.Logger

	mu          sync.RWMutex
	subscribers map[int]Subscriber
	next        int

	seen *expirable.LRU[string, struct{}]
}

func NewBus(logger *observability.Logger) *Bus {
	return &Bus{
		logger:      logger.WithComponent("audit-bus"),
		subscribers: make(map[int]Subscriber),
		seen:        expirable.NewLRU[string, struct{}](dedupSize, nil, dedupTTL),
	}
}

// Subscribe registers a subscriber and returns an unsubscribe function
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subscribers[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// Publish delivers the event to all subscribers synchronously. Duplicate
// entry ids inside the dedup window are dropped.
func (b *Bus) Publish(event Event) {
	if event.EntryID == "" {
		event.EntryID = uuid.NewString()
	} else {
		if _, dup := b.seen.Get(event.EntryID); dup {
			return
		}
		b.seen.Add(event.EntryID, struct{}{})
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	subscribers := make([]Subscriber, 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subscribers = append(subscribers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subscribers {
		b.deliver(fn, event)
	}
}

func (b *Bus) deliver(fn Subscriber, event Event) {
	defer observability.RecoverPanic(b.logger.WithField("kind", string(event.Kind)), "audit subscriber")
	fn(event)
}
