// Package events carries domain notifications from the engine to whoever
// cares about them (achievements, analytics, notification delivery).
package events

import (
	"io"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind names an event type.
type Kind string

const (
	KindAnswerGraded       Kind = "answer_graded"
	KindItemScheduled      Kind = "item_scheduled"
	KindSessionCompleted   Kind = "session_completed"
	KindSessionAbandoned   Kind = "session_abandoned"
	KindRecordDeadLettered Kind = "record_dead_lettered"
)

// Event is anything published on the bus.
type Event interface {
	Kind() Kind
}

// AnswerGraded is published after each graded answer.
type AnswerGraded struct {
	SessionID string
	UserID    string
	ItemID    string
	Correct   bool
	Score     int
	Attempt   int
	At        time.Time
}

func (AnswerGraded) Kind() Kind { return KindAnswerGraded }

// ItemScheduled carries the new due time of an item, for reminders.
type ItemScheduled struct {
	UserID  string
	ItemID  string
	State   string
	NextDue time.Time
	Leech   bool
}

func (ItemScheduled) Kind() Kind { return KindItemScheduled }

// SessionCompleted is published when a session finishes.
type SessionCompleted struct {
	SessionID  string
	UserID     string
	Answered   int
	Correct    int
	Accuracy   float64
	BestStreak int
	At         time.Time
}

func (SessionCompleted) Kind() Kind { return KindSessionCompleted }

// SessionAbandoned is published when a session is cancelled or expires.
type SessionAbandoned struct {
	SessionID string
	UserID    string
	Answered  int
	Reason    string
	At        time.Time
}

func (SessionAbandoned) Kind() Kind { return KindSessionAbandoned }

// RecordDeadLettered is published when a sync record exhausts its retries.
type RecordDeadLettered struct {
	RecordID   string
	RecordKind string
	EntityKey  string
	LastError  string
	At         time.Time
}

func (RecordDeadLettered) Kind() Kind { return KindRecordDeadLettered }

// Handler receives published events.
type Handler func(Event)

// Bus is a synchronous in-process publisher. Handlers run on the publishing
// goroutine in subscription order and must not block.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
	log    logrus.FieldLogger
}

type subscription struct {
	kinds   map[Kind]bool
	handler Handler
}

// NewBus creates a bus. A nil logger discards handler panics silently.
func NewBus(log logrus.FieldLogger) *Bus {
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	return &Bus{subs: make(map[int]subscription), log: log}
}

// Subscribe registers h for the given kinds, or for every kind when none are
// given. The returned func removes the subscription.
func (b *Bus) Subscribe(h Handler, kinds ...Kind) func() {
	sub := subscription{handler: h}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to every matching subscriber. A panicking handler is
// logged and does not stop delivery to the others.
func (b *Bus) Publish(e Event) {
	if b == nil || e == nil {
		return
	}
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	subs := make([]subscription, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		s := b.subs[id]
		if s.kinds == nil || s.kinds[e.Kind()] {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s.handler, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{"event": e.Kind(), "panic": r}).Error("event handler panicked")
		}
	}()
	h(e)
}
