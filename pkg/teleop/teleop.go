// Package teleop runs the glove pipeline: background ingest, per-tick pose
// mapping and delivery to sinks.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gwillem/glove/pkg/glove"
	"github.com/gwillem/glove/pkg/ingest"
	"github.com/gwillem/glove/pkg/pose"
)

// Sink receives every new pose snapshot.
type Sink interface {
	Name() string
	Apply(ctx context.Context, snap pose.Snapshot) error
	Close() error
}

// Capturer persists capture events and diagnostics history.
type Capturer interface {
	WriteCapture(set pose.AngleSet) error
	WriteHistory(sets []pose.AngleSet) error
}

// State represents the current state of the pipeline.
type State struct {
	Pose        pose.Snapshot
	HasPose     bool
	Calibration pose.State
	Ranges      [glove.NumFingers]float64
	Ingest      ingest.Stats
	Samples     uint64
	Malformed   uint64
	Timestamp   time.Time
	Error       error
}

// Controller manages the ingest loop and the tick loop.
type Controller struct {
	transport   ingest.Transport
	loop        *ingest.Loop
	session     *pose.Session
	sinks       []Sink
	capture     Capturer
	hz          int
	joinTimeout time.Duration
	autoCal     time.Duration

	mu      sync.RWMutex
	running bool
	stateCh chan State
	logCh   chan string

	calibrateCh chan struct{}
	captureCh   chan struct{}
	flushCh     chan struct{}

	// tick goroutine only
	started        time.Time
	autoCalDone    bool
	failReported   bool
	lastPoseTime   time.Time
	lastPoseExists bool
}

// Config holds configuration for the controller.
type Config struct {
	Transport ingest.Transport
	Handoff   string
	Session   pose.Options
	Hz        int
	// JoinTimeout bounds how long Close waits for the reader goroutine.
	JoinTimeout time.Duration
	// AutoCalibrateAfter calibrates once this long after Start, as soon as
	// a sample exists. Zero disables it.
	AutoCalibrateAfter time.Duration
	Sinks              []Sink
	Capture            Capturer
}

// NewController creates a new controller. The transport is owned by the
// controller from here on and closed by Close.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Transport == nil {
		return nil, errors.New("transport is required")
	}
	handoff, err := ingest.NewHandoff(cfg.Handoff)
	if err != nil {
		return nil, err
	}
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 200 * time.Millisecond
	}

	c := &Controller{
		transport:   cfg.Transport,
		loop:        ingest.NewLoop(cfg.Transport, handoff),
		sinks:       cfg.Sinks,
		capture:     cfg.Capture,
		hz:          cfg.Hz,
		joinTimeout: cfg.JoinTimeout,
		autoCal:     cfg.AutoCalibrateAfter,
		stateCh:     make(chan State, 1),
		logCh:       make(chan string, 10),
		calibrateCh: make(chan struct{}, 1),
		captureCh:   make(chan struct{}, 1),
		flushCh:     make(chan struct{}, 1),
	}

	opts := cfg.Session
	onDiag := opts.OnDiagnostic
	opts.OnDiagnostic = func(set pose.AngleSet) {
		c.log("%s", set)
		if onDiag != nil {
			onDiag(set)
		}
	}
	c.session = pose.NewSession(handoff, opts)
	return c, nil
}

// Close stops the reader, waiting at most the join timeout, then releases
// the transport and the sinks.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	var errs []error
	if err := c.loop.Stop(c.joinTimeout); err != nil {
		log.WithField("timeout", c.joinTimeout).Warn("teleop: reader did not stop, closing transport anyway")
	}
	if err := c.transport.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, s := range c.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the tick frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// Done is closed when the reader goroutine has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.loop.Done()
}

// Calibrate requests a calibration on the next tick.
func (c *Controller) Calibrate() {
	request(c.calibrateCh)
}

// Capture requests that the current angles be persisted.
func (c *Controller) Capture() {
	request(c.captureCh)
}

// FlushHistory requests that the diagnostics history be written out.
func (c *Controller) FlushHistory() {
	request(c.flushCh)
}

func request(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the ingest loop and the tick loop until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	if err := c.loop.Start(ctx); err != nil {
		return err
	}
	c.started = time.Now()
	c.log("Pipeline started at %d Hz", c.hz)

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-c.calibrateCh:
			c.calibrate()
		case <-c.captureCh:
			c.captureNow()
		case <-c.flushCh:
			c.flushHistory()
		case t := <-ticker.C:
			c.step(ctx, t.Sub(last))
			last = t
		}
	}
}

func (c *Controller) step(ctx context.Context, elapsed time.Duration) {
	if c.autoCal > 0 && !c.autoCalDone && time.Since(c.started) >= c.autoCal {
		if err := c.session.Calibrate(); err == nil {
			c.autoCalDone = true
			c.log("Auto-calibrated")
		}
	}

	snap, ok := c.session.Tick(elapsed)

	state := State{
		Pose:        snap,
		HasPose:     ok,
		Calibration: c.session.State(),
		Ranges:      c.session.RangeOfMotion(),
		Ingest:      c.loop.Stats(),
		Samples:     c.session.Samples(),
		Malformed:   c.session.Malformed(),
		Timestamp:   time.Now(),
	}
	if err := c.loop.Err(); err != nil {
		state.Error = err
		if !c.failReported {
			c.failReported = true
			c.log("Transport failed: %v", err)
		}
	}

	if ok && (!c.lastPoseExists || !snap.Time.Equal(c.lastPoseTime)) {
		c.lastPoseExists = true
		c.lastPoseTime = snap.Time
		for _, s := range c.sinks {
			if err := s.Apply(ctx, snap); err != nil {
				log.WithFields(log.Fields{"sink": s.Name(), "err": err}).Warn("teleop: sink failed")
			}
		}
	}

	c.sendState(state)
}

func (c *Controller) calibrate() {
	if err := c.session.Calibrate(); err != nil {
		c.log("Calibration rejected: %v", err)
		return
	}
	c.autoCalDone = true
	c.log("Calibrated")
}

func (c *Controller) captureNow() {
	set, ok := c.session.Capture()
	if !ok {
		c.log("Nothing to capture yet")
		return
	}
	if c.capture == nil {
		c.log("Capture: %s", set)
		return
	}
	if err := c.capture.WriteCapture(set); err != nil {
		c.log("Capture failed: %v", err)
		return
	}
	c.log("Captured %s", set)
}

func (c *Controller) flushHistory() {
	if c.capture == nil {
		return
	}
	history := c.session.History()
	if err := c.capture.WriteHistory(history); err != nil {
		c.log("History write failed: %v", err)
		return
	}
	c.log("Wrote %d history entries", len(history))
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if c.capture != nil && len(c.session.History()) > 0 {
		c.flushHistory()
	}
	c.log("Pipeline stopped")
}
