// Package orchestrator owns the camera and microphone sessions of one
// capture agent and tears them down in a safe order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-capture/capture"
	"github.com/maastricht-university/edmo-capture/clients"
	"github.com/maastricht-university/edmo-capture/media"
	"github.com/maastricht-university/edmo-capture/recording"
)

var (
	ErrClosed       = errors.New("orchestrator: torn down")
	ErrCameraActive = errors.New("orchestrator: camera already started")
)

// Analyzer is the full analysis service boundary.
type Analyzer interface {
	capture.Analyzer
	recording.Analyzer
}

type Options struct {
	Interval       time.Duration
	DiscardStale   bool
	JPEGQuality    int
	RequestTimeout time.Duration
	Filename       string
	Ticker         capture.TickerFunc
	Logger         *logrus.Entry
}

type Orchestrator struct {
	id       string
	platform media.Platform
	log      *logrus.Entry

	mu     sync.Mutex
	closed bool
	video  *media.Handle
	sched  *capture.Scheduler
	rec    *recording.Session
}

func New(p media.Platform, a Analyzer, o Options) *Orchestrator {
	id := uuid.NewString()
	log := o.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("session", id)

	opts := []capture.Option{
		capture.WithInterval(o.Interval),
		capture.WithLogger(log),
		capture.WithStaleDiscard(o.DiscardStale),
		capture.WithJPEGQuality(o.JPEGQuality),
		capture.WithRequestTimeout(o.RequestTimeout),
	}
	if o.Ticker != nil {
		opts = append(opts, capture.WithTicker(o.Ticker))
	}

	return &Orchestrator{
		id:       id,
		platform: p,
		log:      log.WithField("component", "orchestrator"),
		sched:    capture.New(a, opts...),
		rec: recording.New(p, a, recording.Config{
			Filename: o.Filename,
			Timeout:  o.RequestTimeout,
			Logger:   log,
		}),
	}
}

func (o *Orchestrator) ID() string { return o.id }

// StartCamera acquires the camera. It must be stopped before it can be
// started again.
func (o *Orchestrator) StartCamera(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.video.Active() {
		return ErrCameraActive
	}

	h, err := media.Acquire(ctx, o.platform, media.KindVideo)
	if err != nil {
		return fmt.Errorf("start camera: %w", err)
	}
	o.video = h
	o.log.Info("camera started")
	return nil
}

// StopCamera stops tracking, then releases the camera.
func (o *Orchestrator) StopCamera() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopCameraLocked()
}

func (o *Orchestrator) stopCameraLocked() {
	o.sched.Stop()
	if o.video.Active() {
		o.video.Release()
		o.log.Info("camera released")
	}
	o.video = nil
}

func (o *Orchestrator) StartTracking() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if !o.video.Active() {
		return capture.ErrNoActiveVideo
	}
	return o.sched.Start(o.video)
}

func (o *Orchestrator) StopTracking() { o.sched.Stop() }

func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	return o.rec.Start(ctx)
}

func (o *Orchestrator) StopRecording() { o.rec.Stop() }

func (o *Orchestrator) FrameResult() (capture.Result, bool) { return o.sched.Latest() }

func (o *Orchestrator) AudioResult() *clients.AudioResp { return o.rec.Result() }

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		Session:   o.id,
		Camera:    o.video.Active(),
		Tracking:  o.sched.Running(),
		Recording: o.rec.State(),
		Closed:    o.closed,
	}
	if r, ok := o.sched.Latest(); ok {
		st.Frame = &r
	}
	st.Audio = o.rec.Result()
	return st
}

// Teardown silences every producer before releasing what it reads from:
// the capture schedule stops, then the camera is released, then a running
// recording is stopped (which releases the microphone). Calling it again
// does nothing.
func (o *Orchestrator) Teardown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.stopCameraLocked()

	if o.rec.State() == recording.StateRecording {
		o.rec.Stop()
	}
	o.log.Info("session torn down")
}

// Wait blocks until outstanding analysis requests have completed.
func (o *Orchestrator) Wait() {
	o.sched.Wait()
	o.rec.Wait()
}
