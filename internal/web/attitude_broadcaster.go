package web

import (
	"context"
	"sync"
	"time"
)

// AttitudeBroadcaster fans attitude snapshots out to websocket listeners.
// It keeps the most recent value so new subscribers get an immediate sample.
type AttitudeBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan AttitudeSnapshot
	nextID   int
	last     AttitudeSnapshot
	haveLast bool
}

func NewAttitudeBroadcaster() *AttitudeBroadcaster {
	return &AttitudeBroadcaster{
		subs: make(map[int]chan AttitudeSnapshot),
	}
}

func (b *AttitudeBroadcaster) Subscribe(buffer int) (int, <-chan AttitudeSnapshot) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan AttitudeSnapshot, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.haveLast {
		ch <- b.last
	}
	b.mu.Unlock()
	return id, ch
}

func (b *AttitudeBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish never blocks; a subscriber that has not drained its buffer misses
// the sample.
func (b *AttitudeBroadcaster) Publish(att AttitudeSnapshot) {
	if b == nil {
		return
	}
	if att.LastUpdateUTC == "" {
		att.LastUpdateUTC = time.Now().UTC().Format(time.RFC3339Nano)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = att
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- att:
		default:
		}
	}
}

// Pump publishes src every interval until ctx is done.
func (b *AttitudeBroadcaster) Pump(ctx context.Context, interval time.Duration, src func() AttitudeSnapshot) {
	if b == nil || src == nil {
		return
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.Publish(src())
		}
	}
}
