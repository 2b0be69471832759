package notifications

import (
	"sync"

	"github.com/rs/zerolog"
)

// Alert levels understood by every notifier.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notifier defines the interface for notification services
type Notifier interface {
	// SendAlert sends an alert with the specified level and message
	SendAlert(level, message string) error
}

// NopNotifier drops every alert.
type NopNotifier struct{}

func (NopNotifier) SendAlert(string, string) error { return nil }

type alert struct {
	level   string
	message string
}

// AsyncNotifier queues alerts for a single background sender so callers never block on
// chat I/O. When the queue is full the alert is dropped and logged.
type AsyncNotifier struct {
	inner Notifier
	log   zerolog.Logger
	queue chan alert

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncNotifier starts the sender goroutine.
func NewAsyncNotifier(inner Notifier, size int, log zerolog.Logger) *AsyncNotifier {
	if size <= 0 {
		size = 100
	}
	n := &AsyncNotifier{
		inner: inner,
		log:   log.With().Str("component", "notifier").Logger(),
		queue: make(chan alert, size),
		done:  make(chan struct{}),
	}
	go n.loop()
	return n
}

func (n *AsyncNotifier) loop() {
	defer close(n.done)
	for a := range n.queue {
		if err := n.inner.SendAlert(a.level, a.message); err != nil {
			n.log.Warn().Err(err).Str("level", a.level).Msg("alert not delivered")
		}
	}
}

// SendAlert enqueues the alert.
func (n *AsyncNotifier) SendAlert(level, message string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return nil
	}
	select {
	case n.queue <- alert{level: level, message: message}:
	default:
		n.log.Warn().Str("level", level).Msg("alert queue full, dropping")
	}
	return nil
}

// Close stops accepting alerts and waits until the queue is drained.
func (n *AsyncNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	<-n.done
}
