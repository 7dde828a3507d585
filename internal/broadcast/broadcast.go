// Package broadcast periodically announces a fortune to every configured
// publisher.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortune-cookie/server/internal/fortune"
	"github.com/rs/zerolog"
)

// Prefix starts every announcement.
const Prefix = "📢 FORTUNE OF THE DAY!!!!:"

const DefaultInterval = 60 * time.Second

const publishTimeout = 5 * time.Second

// Publisher delivers one announcement to its audience.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, text string) error
}

type Emitter struct {
	selector   *fortune.Selector
	interval   time.Duration
	publishers []Publisher
	log        zerolog.Logger

	sent atomic.Int64
	mu   sync.RWMutex
	last string
}

func NewEmitter(selector *fortune.Selector, interval time.Duration, log zerolog.Logger, publishers ...Publisher) *Emitter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Emitter{
		selector:   selector,
		interval:   interval,
		publishers: publishers,
		log:        log,
	}
}

// Run announces once immediately and then every interval until ctx is done.
func (e *Emitter) Run(ctx context.Context) {
	e.log.Info().
		Dur("interval", e.interval).
		Int("publishers", len(e.publishers)).
		Msg("broadcast emitter started")

	e.Emit(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Int64("sent", e.sent.Load()).Msg("broadcast emitter stopped")
			return
		case <-ticker.C:
			e.Emit(ctx)
		}
	}
}

// Emit picks a fortune and hands the announcement to every publisher. A
// failing publisher does not stop the others.
func (e *Emitter) Emit(ctx context.Context) {
	text := Prefix + e.selector.Random().Text

	e.mu.Lock()
	e.last = text
	e.mu.Unlock()
	e.sent.Add(1)

	for _, p := range e.publishers {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := p.Publish(pctx, text)
		cancel()
		if err != nil {
			e.log.Warn().Err(err).Str("publisher", p.Name()).Msg("broadcast failed")
			continue
		}
		e.log.Debug().Str("publisher", p.Name()).Msg("broadcast sent")
	}
}

// Sent returns how many announcements were emitted.
func (e *Emitter) Sent() int64 {
	return e.sent.Load()
}

// Last returns the most recent announcement, or "" before the first one.
func (e *Emitter) Last() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}
