package pubsub

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SubscriptionBuffer is how many undelivered messages a subscriber may
// hold before further messages are dropped
const SubscriptionBuffer = 4

type SubscriptionID int64

type Pubsub[T any] struct {
	log         zerolog.Logger
	nextID      SubscriptionID
	subscribers map[SubscriptionID]chan<- T
	mu          sync.RWMutex
}

func New[T any]() *Pubsub[T] {
	return &Pubsub[T]{
		log:         log.With().Str("component", "pubsub").Logger(),
		subscribers: make(map[SubscriptionID]chan<- T),
	}
}

func (this *Pubsub[T]) Subscribe() (SubscriptionID, <-chan T) {
	this.mu.Lock()
	defer this.mu.Unlock()

	ch := make(chan T, SubscriptionBuffer)
	id := this.nextID

	this.subscribers[id] = ch
	this.nextID += 1

	return id, ch
}

func (this *Pubsub[T]) Unsubscribe(id SubscriptionID) {
	this.mu.Lock()
	defer this.mu.Unlock()

	ch, ok := this.subscribers[id]
	if !ok {
		return
	}

	delete(this.subscribers, id)
	close(ch)
}

// Len returns the number of active subscriptions
func (this *Pubsub[T]) Len() int {
	this.mu.RLock()
	defer this.mu.RUnlock()

	return len(this.subscribers)
}

// Publish never blocks; a subscriber with a full buffer misses the message.
func (this *Pubsub[T]) Publish(msg T) {
	this.mu.RLock()
	defer this.mu.RUnlock()

	for id, ch := range this.subscribers {
		select {
		case ch <- msg:
		default:
			this.log.Warn().
				Int64("subscription_id", int64(id)).
				Interface("message", msg).
				Msg("Message dropped, channel full")
		}
	}
}
