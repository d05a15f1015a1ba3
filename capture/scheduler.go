// Package capture samples frames from a live camera on a fixed period and
// sends each one for emotion analysis.
package capture

import (
	"context"
	"errors"
	"image/jpeg"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-capture/clients"
	"github.com/maastricht-university/edmo-capture/media"
)

const DefaultInterval = 2000 * time.Millisecond

var (
	ErrNoActiveVideo  = errors.New("capture: no active video handle")
	ErrAlreadyRunning = errors.New("capture: scheduler already running")
)

// Analyzer is the analyze-frame half of the analysis service.
type Analyzer interface {
	AnalyzeFrame(ctx context.Context, image string) (*clients.FrameResp, error)
}

// Result is the outcome of one analysed tick.
type Result struct {
	Seq     uint64
	Emotion string
	Image   string
	At      time.Time
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithTicker(f TickerFunc) Option { return func(s *Scheduler) { s.newTicker = f } }

func WithLogger(l *logrus.Entry) Option { return func(s *Scheduler) { s.log = l } }

// WithRequestTimeout bounds each analyze-frame request.
func WithRequestTimeout(d time.Duration) Option { return func(s *Scheduler) { s.timeout = d } }

// WithStaleDiscard drops responses older than the stored result instead of
// letting the last response to arrive win.
func WithStaleDiscard(on bool) Option { return func(s *Scheduler) { s.discardStale = on } }

func WithJPEGQuality(q int) Option {
	return func(s *Scheduler) {
		if q > 0 && q <= 100 {
			s.quality = q
		}
	}
}

// Scheduler fires a capture tick every interval while running. Ticks do
// not wait for earlier dispatches to finish and stopping never cancels a
// dispatch already in flight.
type Scheduler struct {
	analyzer     Analyzer
	interval     time.Duration
	newTicker    TickerFunc
	log          *logrus.Entry
	timeout      time.Duration
	discardStale bool
	quality      int

	mu       sync.Mutex
	running  bool
	ticker   Ticker
	quit     chan struct{}
	loopDone chan struct{}
	seq      uint64

	inflight sync.WaitGroup

	resMu  sync.Mutex
	result Result
	has    bool
}

func New(a Analyzer, opts ...Option) *Scheduler {
	s := &Scheduler{
		analyzer:  a,
		interval:  DefaultInterval,
		newTicker: newStdTicker,
		quality:   jpeg.DefaultQuality,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithField("component", "capture")
	return s
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins ticking against the borrowed video handle.
func (s *Scheduler) Start(h *media.Handle) error {
	if !h.Active() || h.Kind() != media.KindVideo {
		return ErrNoActiveVideo
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	s.ticker = s.newTicker(s.interval)
	s.quit = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.running = true
	go s.loop(h, s.ticker, s.quit, s.loopDone)

	s.log.WithField("interval", s.interval).Info("tracking started")
	return nil
}

// Stop cancels future ticks. Once it returns no tick touches the video
// handle anymore, but earlier dispatches may still land a result.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.ticker.Stop()
	close(s.quit)
	<-s.loopDone

	s.ticker, s.quit, s.loopDone = nil, nil, nil
	s.running = false
	s.log.Info("tracking stopped")
}

// Wait blocks until every dispatched request has completed.
func (s *Scheduler) Wait() { s.inflight.Wait() }

// Latest returns the stored result, if any tick succeeded yet.
func (s *Scheduler) Latest() (Result, bool) {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	return s.result, s.has
}

func (s *Scheduler) loop(h *media.Handle, t Ticker, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case at := <-t.C():
			// a tick racing Stop must not read the handle
			select {
			case <-quit:
				return
			default:
			}
			s.tick(h, at)
		}
	}
}

func (s *Scheduler) tick(h *media.Handle, at time.Time) {
	s.seq++
	seq := s.seq
	log := s.log.WithField("seq", seq)

	vt, err := h.Video()
	if err != nil {
		log.WithError(err).Warn("tick skipped: video unavailable")
		return
	}
	img, err := grab(vt)
	if err != nil {
		log.WithError(err).Warn("tick skipped: frame capture failed")
		return
	}
	url, err := encodeDataURL(img, s.quality)
	if err != nil {
		log.WithError(err).Warn("tick skipped")
		return
	}

	s.inflight.Add(1)
	go s.dispatch(seq, at, url, log)
}

func (s *Scheduler) dispatch(seq uint64, at time.Time, url string, log *logrus.Entry) {
	defer s.inflight.Done()

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.analyzer.AnalyzeFrame(ctx, url)
	if err != nil {
		log.WithError(err).Warn("frame analysis failed")
		return
	}

	s.resMu.Lock()
	defer s.resMu.Unlock()
	if s.discardStale && s.has && seq < s.result.Seq {
		log.WithField("stored", s.result.Seq).Debug("stale frame result dropped")
		return
	}
	s.result = Result{Seq: seq, Emotion: resp.Emotion, Image: resp.Image, At: at}
	s.has = true
	log.WithField("emotion", resp.Emotion).Debug("frame analysed")
}
