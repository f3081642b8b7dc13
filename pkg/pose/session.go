package pose

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gwillem/glove/pkg/glove"
)

// ErrNoSample is returned by Calibrate before any sample has been parsed.
var ErrNoSample = errors.New("no sample to calibrate against")

// State is the calibration state of a session.
type State int

const (
	Uncalibrated State = iota
	Calibrated
)

func (s State) String() string {
	if s == Calibrated {
		return "calibrated"
	}
	return "uncalibrated"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Source supplies the raw lines received since the previous call.
type Source interface {
	Drain() []string
}

// Snapshot is the pose produced by the most recent mapped sample.
type Snapshot struct {
	Fingers      [glove.NumFingers]FingerPose `json:"fingers"`
	Wrist        glove.Quat                   `json:"wrist"`
	WristDegrees float64                      `json:"wrist_degrees"`
	State        State                        `json:"state"`
	Seq          uint64                       `json:"seq"`
	Time         time.Time                    `json:"time"`
}

// Options configures a Session.
type Options struct {
	Profiles           [glove.NumFingers]glove.Profile
	RequireCalibration bool
	LegacyWrist        bool

	// LogInterval is the diagnostics cadence. Zero means one second.
	LogInterval time.Duration
	// ReportGain scales finger degrees in diagnostics and captures.
	ReportGain float64
	// History keeps every diagnostics AngleSet for a later flush.
	History bool
	// OnDiagnostic, if set, receives every throttled AngleSet.
	OnDiagnostic func(AngleSet)
}

// Session owns calibration, mapping and range tracking for one glove. It is
// not safe for concurrent use: one goroutine calls Tick and the control
// methods.
type Session struct {
	src    Source
	mapper Mapper
	opts   Options

	state    State
	baseline Baseline
	latest   *glove.Sample
	pose     *Snapshot
	ranges   *RangeTracker

	seq       uint64
	malformed uint64
	logAcc    time.Duration
	history   []AngleSet

	now func() time.Time
}

// NewSession creates an uncalibrated session reading from src.
func NewSession(src Source, opts Options) *Session {
	if opts.LogInterval <= 0 {
		opts.LogInterval = time.Second
	}
	if opts.ReportGain == 0 {
		opts.ReportGain = 1
	}
	return &Session{
		src: src,
		mapper: Mapper{
			Profiles:    opts.Profiles,
			LegacyWrist: opts.LegacyWrist,
		},
		opts:     opts,
		state:    Uncalibrated,
		baseline: ZeroBaseline,
		ranges:   NewRangeTracker(),
		now:      time.Now,
	}
}

// Tick drains pending lines, updates all derived state and returns the
// latest pose. ok is false while there is no pose yet.
func (s *Session) Tick(elapsed time.Duration) (snap Snapshot, ok bool) {
	for _, line := range s.src.Drain() {
		s.consume(line)
	}
	if s.pose == nil {
		return Snapshot{}, false
	}
	if s.mapping() {
		s.throttle(elapsed)
	}
	return *s.pose, true
}

func (s *Session) consume(line string) {
	sample, err := glove.ParseSample(line)
	if err != nil {
		s.malformed++
		log.WithField("err", err).Debug("pose: discarding sample")
		return
	}
	s.seq++
	s.latest = &sample
	if !s.mapping() {
		return
	}
	s.apply(sample, true)
}

func (s *Session) mapping() bool {
	return s.state == Calibrated || !s.opts.RequireCalibration
}

func (s *Session) apply(sample glove.Sample, observe bool) {
	fingers := s.mapper.Fingers(sample, s.baseline)
	wrist := s.mapper.Wrist(sample, s.baseline)
	if observe {
		var deg [glove.NumFingers]float64
		for i, f := range fingers {
			deg[i] = f.Degrees
		}
		s.ranges.Observe(deg)
	}
	s.pose = &Snapshot{
		Fingers:      fingers,
		Wrist:        wrist,
		WristDegrees: wrist.SignedZDegrees(),
		State:        s.state,
		Seq:          s.seq,
		Time:         s.now(),
	}
}

func (s *Session) throttle(elapsed time.Duration) {
	s.logAcc += elapsed
	if s.logAcc < s.opts.LogInterval {
		return
	}
	s.logAcc = 0
	set := s.angleSet()
	log.WithField("ranges", formatRanges(s.ranges.Range())).Info(set.String())
	if s.opts.History {
		s.history = append(s.history, set)
	}
	if s.opts.OnDiagnostic != nil {
		s.opts.OnDiagnostic(set)
	}
}

// Calibrate makes the most recent sample the zero pose and resets the range
// stats. Calling it again re-calibrates.
func (s *Session) Calibrate() error {
	if s.latest == nil {
		return ErrNoSample
	}
	sample := *s.latest
	s.baseline = Baseline{
		Offsets: sample.Angles,
		Wrist:   sample.Wrist,
	}
	s.ranges.Reset()
	s.state = Calibrated
	s.apply(sample, false)
	log.WithFields(log.Fields{
		"offsets": sample.Angles,
		"wrist":   sample.Wrist,
	}).Info("pose: calibrated")
	return nil
}

// State returns the calibration state.
func (s *Session) State() State {
	return s.state
}

// Baseline returns the active baseline. It is ZeroBaseline until calibrated.
func (s *Session) Baseline() Baseline {
	return s.baseline
}

// LatestPose returns a copy of the latest mapped pose.
func (s *Session) LatestPose() (Snapshot, bool) {
	if s.pose == nil {
		return Snapshot{}, false
	}
	return *s.pose, true
}

// LatestSample returns the most recently parsed sample, mapped or not.
func (s *Session) LatestSample() (glove.Sample, bool) {
	if s.latest == nil {
		return glove.Sample{}, false
	}
	return *s.latest, true
}

// RangeOfMotion returns max - min degrees per finger since calibration.
func (s *Session) RangeOfMotion() [glove.NumFingers]float64 {
	return s.ranges.Range()
}

// RangeBounds returns the min and max degrees of finger i.
func (s *Session) RangeBounds(i int) (lo, hi float64) {
	return s.ranges.Bounds(i)
}

// Capture returns the current angle set for persisting on demand.
func (s *Session) Capture() (AngleSet, bool) {
	if s.pose == nil {
		return AngleSet{}, false
	}
	return s.angleSet(), true
}

// History returns the throttled angle sets recorded so far.
func (s *Session) History() []AngleSet {
	out := make([]AngleSet, len(s.history))
	copy(out, s.history)
	return out
}

// ClearHistory drops the recorded angle sets.
func (s *Session) ClearHistory() {
	s.history = nil
}

// Samples returns the number of parsed samples.
func (s *Session) Samples() uint64 {
	return s.seq
}

// Malformed returns the number of lines that failed to parse.
func (s *Session) Malformed() uint64 {
	return s.malformed
}

func (s *Session) angleSet() AngleSet {
	var set AngleSet
	for i, f := range s.pose.Fingers {
		set.Fingers[i] = f.Degrees * s.opts.ReportGain
	}
	set.Wrist = s.pose.WristDegrees
	return set
}
