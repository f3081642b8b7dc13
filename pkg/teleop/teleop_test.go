package teleop

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/glove/pkg/glove"
	"github.com/gwillem/glove/pkg/ingest"
	"github.com/gwillem/glove/pkg/pose"
)

const exampleLine = "x,0.5,x,x,x,0.3,x,x,x,0.1,x,x,x,0.2,x,x,x,0.05,x,x,1,0,0,0"

// chanTransport serves lines pushed on a channel and times out when idle.
type chanTransport struct {
	lines  chan string
	fail   chan error
	mu     sync.Mutex
	closed bool
}

func newChanTransport() *chanTransport {
	return &chanTransport{
		lines: make(chan string, 16),
		fail:  make(chan error, 1),
	}
}

func (c *chanTransport) ReadLine() (string, error) {
	select {
	case l := <-c.lines:
		return l, nil
	case err := <-c.fail:
		return "", err
	case <-time.After(5 * time.Millisecond):
		return "", ingest.ErrTimeout
	}
}

func (c *chanTransport) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *chanTransport) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type recordSink struct {
	mu     sync.Mutex
	snaps  []pose.Snapshot
	closed bool
}

func (s *recordSink) Name() string { return "record" }

func (s *recordSink) Apply(_ context.Context, snap pose.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *recordSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func (s *recordSink) last() pose.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[len(s.snaps)-1]
}

type recordCapture struct {
	mu       sync.Mutex
	captures []pose.AngleSet
	history  [][]pose.AngleSet
}

func (r *recordCapture) WriteCapture(set pose.AngleSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = append(r.captures, set)
	return nil
}

func (r *recordCapture) WriteHistory(sets []pose.AngleSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, sets)
	return nil
}

func (r *recordCapture) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.captures), len(r.history)
}

func testProfiles() [glove.NumFingers]glove.Profile {
	p, _ := glove.Preset("mcp")
	return [glove.NumFingers]glove.Profile{p, p, p, p, p}
}

// startController runs a controller until the test ends. stop cancels it
// and returns the result of Start; it is safe to call more than once.
func startController(t *testing.T, cfg Config) (ctrl *Controller, stop func() error) {
	t.Helper()
	if cfg.Hz == 0 {
		cfg.Hz = 200
	}
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Start(ctx)
	}()
	stop = sync.OnceValue(func() error {
		cancel()
		return <-errCh
	})
	t.Cleanup(func() {
		stop()
		ctrl.Close()
	})
	return ctrl, stop
}

// waitState reads states until ok returns true.
func waitState(t *testing.T, ctrl *Controller, ok func(State) bool) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ctrl.States():
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for state")
			return State{}
		}
	}
}

func TestNewController_RequiresTransport(t *testing.T) {
	_, err := NewController(Config{})
	assert.Error(t, err)

	_, err = NewController(Config{Transport: newChanTransport(), Handoff: "stack"})
	assert.Error(t, err)
}

func TestController_CalibrateAndMap(t *testing.T) {
	tr := newChanTransport()
	sink := &recordSink{}
	ctrl, _ := startController(t, Config{
		Transport: tr,
		Session:   pose.Options{Profiles: testProfiles(), RequireCalibration: true},
		Sinks:     []Sink{sink},
	})

	tr.lines <- exampleLine
	s := waitState(t, ctrl, func(s State) bool { return s.Samples == 1 })
	assert.False(t, s.HasPose, "no pose before calibration")
	assert.Equal(t, 0, sink.count())

	ctrl.Calibrate()
	s = waitState(t, ctrl, func(s State) bool { return s.Calibration == pose.Calibrated && s.HasPose })
	for _, f := range s.Pose.Fingers {
		assert.Equal(t, 0.0, f.Delta)
	}

	tr.lines <- "x,0.6,x,x,x,0.3,x,x,x,0.1,x,x,x,0.2,x,x,x,0.05,x,x,1,0,0,0"
	waitState(t, ctrl, func(s State) bool { return s.Pose.Seq == 2 })
	require.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 0.1, sink.last().Fingers[0].Delta, 1e-9)
}

func TestController_SinkSeesEachPoseOnce(t *testing.T) {
	tr := newChanTransport()
	sink := &recordSink{}
	ctrl, _ := startController(t, Config{
		Transport: tr,
		Session:   pose.Options{Profiles: testProfiles(), RequireCalibration: false},
		Sinks:     []Sink{sink},
	})

	tr.lines <- exampleLine
	waitState(t, ctrl, func(s State) bool { return s.HasPose })
	// Let a number of idle ticks pass.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

func TestController_TransportFailure(t *testing.T) {
	tr := newChanTransport()
	ctrl, _ := startController(t, Config{
		Transport: tr,
		Session:   pose.Options{Profiles: testProfiles(), RequireCalibration: false},
	})

	tr.lines <- exampleLine
	waitState(t, ctrl, func(s State) bool { return s.HasPose })

	boom := errors.New("unplugged")
	tr.fail <- boom
	s := waitState(t, ctrl, func(s State) bool { return s.Error != nil })
	assert.ErrorIs(t, s.Error, boom)
	assert.True(t, s.HasPose, "the last good pose is kept")

	select {
	case <-ctrl.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}

	var logs []string
	require.Eventually(t, func() bool {
		for {
			select {
			case l := <-ctrl.Logs():
				logs = append(logs, l)
			default:
				return strings.Contains(strings.Join(logs, "\n"), "Transport failed")
			}
		}
	}, time.Second, 5*time.Millisecond)
}

func TestController_AutoCalibrate(t *testing.T) {
	tr := newChanTransport()
	ctrl, _ := startController(t, Config{
		Transport:          tr,
		Session:            pose.Options{Profiles: testProfiles(), RequireCalibration: true},
		AutoCalibrateAfter: 20 * time.Millisecond,
	})

	tr.lines <- exampleLine
	s := waitState(t, ctrl, func(s State) bool { return s.Calibration == pose.Calibrated })
	assert.True(t, s.HasPose)
}

func TestController_CaptureAndHistory(t *testing.T) {
	tr := newChanTransport()
	capture := &recordCapture{}
	ctrl, stop := startController(t, Config{
		Transport: tr,
		Session: pose.Options{
			Profiles:           testProfiles(),
			RequireCalibration: false,
			LogInterval:        10 * time.Millisecond,
			History:            true,
		},
		Capture: capture,
	})

	ctrl.Capture()
	time.Sleep(20 * time.Millisecond)
	n, _ := capture.counts()
	assert.Equal(t, 0, n, "nothing to capture before the first pose")

	tr.lines <- exampleLine
	waitState(t, ctrl, func(s State) bool { return s.HasPose })
	ctrl.Capture()
	require.Eventually(t, func() bool { n, _ := capture.counts(); return n == 1 }, time.Second, 5*time.Millisecond)

	ctrl.FlushHistory()
	require.Eventually(t, func() bool { _, h := capture.counts(); return h == 1 }, time.Second, 5*time.Millisecond)

	// Stopping flushes the history once more.
	time.Sleep(30 * time.Millisecond)
	assert.ErrorIs(t, stop(), context.Canceled)
	_, h := capture.counts()
	assert.Equal(t, 2, h)
}

func TestController_CloseReleasesEverything(t *testing.T) {
	tr := newChanTransport()
	sink := &recordSink{}
	ctrl, err := NewController(Config{
		Transport: tr,
		Sinks:     []Sink{sink},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	<-errCh
	require.NoError(t, ctrl.Close())
	assert.True(t, tr.isClosed())
	assert.True(t, sink.closed)
}

func TestController_CloseAfterEOF(t *testing.T) {
	tr := newChanTransport()
	ctrl, err := NewController(Config{Transport: tr})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Start(ctx)

	tr.fail <- io.EOF
	select {
	case <-ctrl.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop on EOF")
	}
	assert.NoError(t, ctrl.Close())
}
