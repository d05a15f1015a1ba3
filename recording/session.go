// Package recording drives start/stop microphone recordings and sends each
// finished recording for speech analysis.
package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-capture/clients"
	"github.com/maastricht-university/edmo-capture/media"
)

const (
	DefaultFilename = "recording.wav"
	// DefaultDrainTimeout bounds the wait for buffered chunks when the
	// recorder failed to stop cleanly.
	DefaultDrainTimeout = 2 * time.Second
)

var (
	ErrNoMicrophone     = errors.New("recording: microphone unavailable")
	ErrAlreadyRecording = errors.New("recording: already recording")
	ErrFinalizing       = errors.New("recording: previous recording is still being analysed")
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Analyzer is the analyze-audio half of the analysis service.
type Analyzer interface {
	AnalyzeAudio(ctx context.Context, payload []byte, filename string) (*clients.AudioResp, error)
}

type Config struct {
	// Filename is sent along with the uploaded payload.
	Filename string
	// Timeout bounds the analyze-audio request; zero leaves it to the client.
	Timeout time.Duration
	// DrainTimeout bounds the chunk drain after a failed recorder stop.
	DrainTimeout time.Duration
	Logger       *logrus.Entry
}

// Session runs one recording at a time: Idle -> Recording -> Finalizing -> Idle.
type Session struct {
	platform media.Platform
	analyzer Analyzer
	filename string
	timeout  time.Duration
	drain    time.Duration
	log      *logrus.Entry

	// op serialises Start and Stop.
	op sync.Mutex

	mu     sync.Mutex
	state  State
	id     string
	result *clients.AudioResp

	handle *media.Handle
	rec    media.Recorder
	chunks [][]byte
	pumped chan struct{}

	inflight sync.WaitGroup
}

func New(p media.Platform, a Analyzer, cfg Config) *Session {
	if cfg.Filename == "" {
		cfg.Filename = DefaultFilename
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		platform: p,
		analyzer: a,
		filename: cfg.Filename,
		timeout:  cfg.Timeout,
		drain:    cfg.DrainTimeout,
		log:      log.WithField("component", "recording"),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result is the analysis of the most recent finished recording. It is nil
// while recording, while finalizing, and after a failed analysis.
func (s *Session) Result() *clients.AudioResp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// ID is the id of the current or most recent recording; it is also sent
// as the request id of the upload.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Start acquires the microphone and begins collecting chunks.
func (s *Session) Start(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	switch s.State() {
	case StateRecording:
		return ErrAlreadyRecording
	case StateFinalizing:
		return ErrFinalizing
	}

	h, err := media.Acquire(ctx, s.platform, media.KindAudio)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoMicrophone, err)
	}
	at, err := h.Audio()
	if err != nil {
		h.Release()
		return fmt.Errorf("%w: %w", ErrNoMicrophone, err)
	}
	rec, err := at.NewRecorder()
	if err != nil {
		h.Release()
		return fmt.Errorf("%w: %w", ErrNoMicrophone, err)
	}
	events, err := rec.Start()
	if err != nil {
		h.Release()
		return fmt.Errorf("%w: %w", ErrNoMicrophone, err)
	}

	s.mu.Lock()
	s.id = uuid.NewString()
	s.result = nil
	s.chunks = nil
	s.handle, s.rec = h, rec
	pumped := make(chan struct{})
	s.pumped = pumped
	s.state = StateRecording
	id := s.id
	s.mu.Unlock()

	go s.pump(id, events, pumped)
	s.log.WithField("recording", id).Info("recording started")
	return nil
}

// pump appends every non-empty chunk in arrival order until the recorder
// closes the channel. Chunks arriving after the recording left the
// Recording state are dropped.
func (s *Session) pump(id string, events <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for c := range events {
		if len(c) == 0 {
			continue
		}
		s.mu.Lock()
		if s.state == StateRecording && s.id == id {
			s.chunks = append(s.chunks, c)
		}
		s.mu.Unlock()
	}
}

// Stop ends the recording and sends the collected audio for analysis. The
// result arrives later; see Result and Wait. Stop outside Recording is a
// no-op.
func (s *Session) Stop() {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	h, rec, pumped, id := s.handle, s.rec, s.pumped, s.id
	s.mu.Unlock()

	log := s.log.WithField("recording", id)
	if err := rec.Stop(); err != nil {
		// the recorder may never close its channel: free the device and
		// keep whatever was collected in time
		log.WithError(err).Warn("recorder stop failed")
		h.Release()
		select {
		case <-pumped:
		case <-time.After(s.drain):
			log.Warn("chunk drain timed out")
		}
	} else {
		<-pumped
	}

	s.mu.Lock()
	s.state = StateFinalizing
	chunks := s.chunks
	s.chunks = nil
	s.handle, s.rec, s.pumped = nil, nil, nil
	s.mu.Unlock()

	h.Release()

	payload := concat(chunks)
	log.WithFields(logrus.Fields{"chunks": len(chunks), "bytes": len(payload)}).Info("recording stopped")

	s.inflight.Add(1)
	go s.finalize(id, payload, log)
}

// Wait blocks until a pending finalization has completed.
func (s *Session) Wait() { s.inflight.Wait() }

func (s *Session) finalize(id string, payload []byte, log *logrus.Entry) {
	defer s.inflight.Done()

	ctx := clients.WithRequestID(context.Background(), id)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.analyzer.AnalyzeAudio(ctx, payload, s.filename)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	if err != nil {
		s.result = nil
		log.WithError(err).Warn("audio analysis failed")
		return
	}
	s.result = res
	log.WithFields(logrus.Fields{
		"language": res.Language,
		"wpm":      res.SpeechRateWPM,
		"fillers":  res.FillerCount,
	}).Info("audio analysed")
}

func concat(chunks [][]byte) []byte {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
