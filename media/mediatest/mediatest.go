// Package mediatest provides in-memory implementations of the media
// platform contracts for tests.
//
// All fakes are safe for concurrent use and count the calls tests usually
// assert on. A Platform hands out fresh tracks on every GetUserMedia call:
//
//	p := mediatest.NewPlatform(image.NewRGBA(image.Rect(0, 0, 64, 48)))
//	h, _ := media.Acquire(ctx, p, media.KindAudio)
//	p.LastAudio().Recorder.Push([]byte("chunk"))
package mediatest

import (
	"context"
	"image"
	"sync"

	"github.com/google/uuid"

	"github.com/maastricht-university/edmo-capture/media"
)

// Platform is a fake media.Platform.
type Platform struct {
	mu sync.Mutex

	// Image is rendered by every video track. Defaults to a 64x48 RGBA.
	Image image.Image

	// Errs makes GetUserMedia fail for a kind.
	Errs map[media.Kind]error

	// RecorderStartErr is returned by recorders of later audio tracks.
	RecorderStartErr error

	// RecorderStopErr makes recorders of later audio tracks fail to stop.
	RecorderStopErr error

	calls  map[media.Kind]int
	videos []*VideoTrack
	audios []*AudioTrack
}

func NewPlatform(img image.Image) *Platform {
	if img == nil {
		img = image.NewRGBA(image.Rect(0, 0, 64, 48))
	}
	return &Platform{Image: img, Errs: map[media.Kind]error{}, calls: map[media.Kind]int{}}
}

func (p *Platform) GetUserMedia(ctx context.Context, kind media.Kind) (media.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[media.Kind]int{}
	}
	p.calls[kind]++
	if err := p.Errs[kind]; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch kind {
	case media.KindVideo:
		vt := &VideoTrack{id: uuid.NewString(), img: p.Image}
		p.videos = append(p.videos, vt)
		return stream{vt}, nil
	default:
		at := &AudioTrack{id: uuid.NewString(), Recorder: NewRecorder()}
		at.Recorder.StartErr = p.RecorderStartErr
		at.Recorder.StopErr = p.RecorderStopErr
		p.audios = append(p.audios, at)
		return stream{at}, nil
	}
}

// Calls reports how many times GetUserMedia was asked for kind.
func (p *Platform) Calls(kind media.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[kind]
}

func (p *Platform) Videos() []*VideoTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*VideoTrack(nil), p.videos...)
}

func (p *Platform) Audios() []*AudioTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*AudioTrack(nil), p.audios...)
}

// LastAudio returns the most recently handed out audio track, or nil.
func (p *Platform) LastAudio() *AudioTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.audios) == 0 {
		return nil
	}
	return p.audios[len(p.audios)-1]
}

type stream []media.Track

func (s stream) Tracks() []media.Track { return s }

// VideoTrack is a fake media.VideoTrack rendering a fixed picture.
type VideoTrack struct {
	id  string
	img image.Image

	mu              sync.Mutex
	stops           int
	frames          int
	framesAfterStop int
}

func (t *VideoTrack) ID() string              { return t.id }
func (t *VideoTrack) Kind() media.Kind        { return media.KindVideo }
func (t *VideoTrack) Resolution() image.Point { return t.img.Bounds().Size() }

func (t *VideoTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

func (t *VideoTrack) Frame() (image.Image, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stops > 0 {
		t.framesAfterStop++
		return nil, media.ErrInactive
	}
	t.frames++
	return t.img, nil
}

// Stops counts Stop calls.
func (t *VideoTrack) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// Frames counts pictures served while the track was live.
func (t *VideoTrack) Frames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// FramesAfterStop counts Frame calls made on a stopped track.
func (t *VideoTrack) FramesAfterStop() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.framesAfterStop
}

// AudioTrack is a fake media.AudioTrack with a single scripted recorder.
type AudioTrack struct {
	id       string
	Recorder *Recorder

	mu    sync.Mutex
	stops int
}

func (t *AudioTrack) ID() string       { return t.id }
func (t *AudioTrack) Kind() media.Kind { return media.KindAudio }

func (t *AudioTrack) Stop() {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
	_ = t.Recorder.Stop()
}

func (t *AudioTrack) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

func (t *AudioTrack) NewRecorder() (media.Recorder, error) { return t.Recorder, nil }

// Recorder is a fake media.Recorder; tests feed it chunks with Push.
type Recorder struct {
	StartErr error
	// StopErr is returned by Stop, which then leaves the channel open the
	// way a lost device would.
	StopErr error

	mu      sync.Mutex
	ch      chan []byte
	started bool
	stopped bool
	stops   int
}

func NewRecorder() *Recorder { return &Recorder{ch: make(chan []byte, 64)} }

func (r *Recorder) Start() (<-chan []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	r.started = true
	return r.ch, nil
}

// Push emits one chunk. It reports false once the recorder is stopped.
func (r *Recorder) Push(b []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.ch <- b
	return true
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if r.StopErr != nil {
		return r.StopErr
	}
	if !r.stopped {
		r.stopped = true
		close(r.ch)
	}
	return nil
}

// Pending is the number of pushed chunks not yet consumed.
func (r *Recorder) Pending() int {
	return len(r.ch)
}

func (r *Recorder) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
