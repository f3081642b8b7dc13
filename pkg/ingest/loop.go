package ingest

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gwillem/glove/pkg/glove"
)

// ErrJoinTimeout is returned by Stop when the reader did not exit in time.
var ErrJoinTimeout = errors.New("ingest loop did not stop in time")

// Stats counts what the reader has seen since start.
type Stats struct {
	Accepted  uint64
	Malformed uint64
	Timeouts  uint64
}

// Loop reads lines from a Transport on its own goroutine and puts every line
// with enough fields into a Handoff. It stops on Stop, on context
// cancellation, or on the first transport error other than ErrTimeout. It
// never reconnects.
type Loop struct {
	transport Transport
	handoff   Handoff

	started  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}

	mu  sync.Mutex
	err error

	accepted  atomic.Uint64
	malformed atomic.Uint64
	timeouts  atomic.Uint64
}

// NewLoop creates a loop. It does not read until Start.
func NewLoop(t Transport, h Handoff) *Loop {
	return &Loop{
		transport: t,
		handoff:   h,
		done:      make(chan struct{}),
	}
}

// Start launches the reader goroutine.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("ingest loop already started")
	}
	go l.run(ctx)
	return nil
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	for {
		if l.stopping.Load() || ctx.Err() != nil {
			return
		}
		line, err := l.transport.ReadLine()
		switch {
		case err == nil:
			l.handle(line)
		case errors.Is(err, ErrTimeout):
			l.timeouts.Add(1)
		default:
			if l.stopping.Load() {
				return
			}
			l.fail(err)
			return
		}
	}
}

func (l *Loop) handle(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if !glove.HasMinFields(line) {
		l.malformed.Add(1)
		log.WithField("fields", strings.Count(line, glove.Delimiter)+1).Debug("ingest: dropping short frame")
		return
	}
	l.accepted.Add(1)
	l.handoff.Put(line)
}

func (l *Loop) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	if errors.Is(err, io.EOF) {
		log.Info("ingest: end of input, reader stopped")
		return
	}
	log.WithField("err", err).Error("ingest: transport failed, reader stopped")
}

// Stop asks the reader to exit and waits up to timeout for it. The
// transport is not closed; the owner closes it after Stop returns.
func (l *Loop) Stop(timeout time.Duration) error {
	l.stopping.Store(true)
	if !l.started.Load() {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-time.After(timeout):
		return ErrJoinTimeout
	}
}

// Done is closed when the reader goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err returns the transport error that stopped the reader, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Failed reports whether the transport failed. A failed loop is not usable
// again.
func (l *Loop) Failed() bool {
	return l.Err() != nil
}

// Stats returns the reader counters so far.
func (l *Loop) Stats() Stats {
	return Stats{
		Accepted:  l.accepted.Load(),
		Malformed: l.malformed.Load(),
		Timeouts:  l.timeouts.Load(),
	}
}
