// Package sse streams letter telemetry (opens, read receipts, CMS updates) to
// connected dashboards as Server-Sent Events.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Letter event kinds accepted by PublishLetterEvent.
const (
	KindOpened  = "opened"
	KindRead    = "read"
	KindUpdated = "updated"
)

// Event types written to the stream.
const (
	TypeLetterOpened   = "letter.opened"
	TypeLetterRead     = "letter.read"
	TypeLetterUpdated  = "letter.updated"
	TypeLettersChanged = "letters.changed"
)

const (
	DefaultCatalogThrottle = 2 * time.Second
	DefaultKeepAlive       = 25 * time.Second
	DefaultClientBuffer    = 64

	// reconnectDelay is sent as the stream's retry hint.
	reconnectDelay = 3 * time.Second
)

// Event is a named message with a JSON payload.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithCatalogThrottle sets the minimum gap between letters.changed events.
func WithCatalogThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.catalogMin = d
		}
	}
}

// WithKeepAlive sets how often idle streams receive a comment line. Zero or
// less disables keepalives.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// WithClientBuffer sets how many frames a slow client may lag behind before
// frames are dropped for it.
func WithClientBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithClock overrides the clock used for the catalog throttle.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// Broker fans encoded frames out to subscribers.
//
// One goroutine owns the subscriber set; frames are encoded by publishers so
// the loop only copies byte slices into client buffers.
type Broker struct {
	catalogMin time.Duration
	keepAlive  time.Duration
	bufferSize int
	now        func() time.Time

	joinCh  chan chan []byte
	leaveCh chan chan []byte
	frameCh chan []byte
	countCh chan chan int

	lastCatalog atomic.Int64
	dropped     atomic.Uint64

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		catalogMin: DefaultCatalogThrottle,
		keepAlive:  DefaultKeepAlive,
		bufferSize: DefaultClientBuffer,
		now:        time.Now,
		joinCh:     make(chan chan []byte),
		leaveCh:    make(chan chan []byte),
		frameCh:    make(chan []byte, 256),
		countCh:    make(chan chan int),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.joinCh:
			clients[ch] = struct{}{}

		case ch := <-b.leaveCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case frame := <-b.frameCh:
			for ch := range clients {
				select {
				case ch <- frame:
				default:
					b.dropped.Add(1)
				}
			}

		case resp := <-b.countCh:
			resp <- len(clients)
		}
	}
}

// encode renders an event as one SSE frame with a fresh id.
func encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", event.Type, err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "id: %s\nevent: %s\ndata: %s\n\n", uuid.NewString(), event.Type, payload)
	return buf.Bytes(), nil
}

// Publish sends event to every subscriber. Events whose data cannot be
// encoded are dropped.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	frame, err := encode(event)
	if err != nil {
		return
	}
	select {
	case b.frameCh <- frame:
	case <-b.stopped:
	}
}

// PublishLetterEvent publishes letter.<kind> for letter id, merging data into
// the payload. Updates are followed by letters.changed at most once per
// catalog throttle. Unknown kinds are ignored.
func (b *Broker) PublishLetterEvent(kind, id string, data map[string]any) {
	var typ string
	switch kind {
	case KindOpened:
		typ = TypeLetterOpened
	case KindRead:
		typ = TypeLetterRead
	case KindUpdated:
		typ = TypeLetterUpdated
	default:
		return
	}

	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["id"] = id
	b.Publish(Event{Type: typ, Data: payload})

	if kind == KindUpdated && b.catalogDue() {
		b.Publish(Event{Type: TypeLettersChanged, Data: map[string]string{}})
	}
}

func (b *Broker) catalogDue() bool {
	now := b.now().UnixNano()
	for {
		last := b.lastCatalog.Load()
		if last != 0 && now-last < int64(b.catalogMin) {
			return false
		}
		if b.lastCatalog.CompareAndSwap(last, now) {
			return true
		}
	}
}

// Subscribe registers a client. The returned channel is closed by
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, b.bufferSize)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.joinCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaveCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Dropped returns how many frames were skipped for clients with full buffers.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops the loop and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// ServeHTTP streams events until the client disconnects or the broker closes.
// Origin checks are applied by the router before this runs.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-store")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: %d\n\n", reconnectDelay.Milliseconds())
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		case <-tick:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
