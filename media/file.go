package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	DefaultChunkSize = 4096
	DefaultTimeslice = 250 * time.Millisecond
)

// FilePlatform serves devices backed by files: the camera renders a still
// image and the microphone replays an audio file in fixed-size chunks.
type FilePlatform struct {
	VideoPath string
	AudioPath string
	ChunkSize int
	Timeslice time.Duration
}

func (p *FilePlatform) GetUserMedia(ctx context.Context, kind Kind) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch kind {
	case KindVideo:
		return p.openVideo()
	case KindAudio:
		return p.openAudio()
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrDeviceUnavailable, kind)
	}
}

func (p *FilePlatform) openVideo() (Stream, error) {
	f, err := openDevice(p.VideoPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrDeviceUnavailable, p.VideoPath, err)
	}
	return fileStream{&fileVideoTrack{id: uuid.NewString(), img: img}}, nil
}

func (p *FilePlatform) openAudio() (Stream, error) {
	f, err := openDevice(p.AudioPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	data := make([]byte, st.Size())
	if _, err := f.ReadAt(data, 0); err != nil && st.Size() > 0 {
		return nil, fmt.Errorf("%w: read %s: %v", ErrDeviceUnavailable, p.AudioPath, err)
	}

	chunk := p.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	slice := p.Timeslice
	if slice <= 0 {
		slice = DefaultTimeslice
	}
	return fileStream{&fileAudioTrack{id: uuid.NewString(), data: data, chunk: chunk, slice: slice}}, nil
}

func openDevice(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no device configured", ErrDeviceUnavailable)
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}

type fileStream []Track

func (s fileStream) Tracks() []Track { return s }

// --- video ---

type fileVideoTrack struct {
	id      string
	img     image.Image
	stopped atomic.Bool
}

func (t *fileVideoTrack) ID() string              { return t.id }
func (t *fileVideoTrack) Kind() Kind              { return KindVideo }
func (t *fileVideoTrack) Stop()                   { t.stopped.Store(true) }
func (t *fileVideoTrack) Resolution() image.Point { return t.img.Bounds().Size() }

func (t *fileVideoTrack) Frame() (image.Image, error) {
	if t.stopped.Load() {
		return nil, ErrInactive
	}
	return t.img, nil
}

// --- audio ---

type fileAudioTrack struct {
	id    string
	data  []byte
	chunk int
	slice time.Duration

	mu      sync.Mutex
	stopped bool
	recs    []*fileRecorder
}

func (t *fileAudioTrack) ID() string { return t.id }
func (t *fileAudioTrack) Kind() Kind { return KindAudio }

func (t *fileAudioTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	recs := t.recs
	t.recs = nil
	t.mu.Unlock()

	for _, r := range recs {
		_ = r.Stop()
	}
}

func (t *fileAudioTrack) NewRecorder() (Recorder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil, ErrInactive
	}
	r := &fileRecorder{track: t}
	t.recs = append(t.recs, r)
	return r, nil
}

type fileRecorder struct {
	track *fileAudioTrack

	mu      sync.Mutex
	started bool
	quit    chan struct{}
	done    chan struct{}
}

func (r *fileRecorder) Start() (<-chan []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil, errors.New("media: recorder already started")
	}
	r.started = true
	r.quit = make(chan struct{})
	r.done = make(chan struct{})

	ch := make(chan []byte, 16)
	go r.run(ch)
	return ch, nil
}

func (r *fileRecorder) run(ch chan<- []byte) {
	defer close(r.done)
	defer close(ch)

	t := time.NewTicker(r.track.slice)
	defer t.Stop()

	data, size := r.track.data, r.track.chunk
	off := 0
	for {
		select {
		case <-r.quit:
			return
		case <-t.C:
		}
		if off >= len(data) {
			// end of file: the device stays open but silent
			continue
		}
		end := min(off+size, len(data))
		buf := make([]byte, end-off)
		copy(buf, data[off:end])
		off = end

		select {
		case ch <- buf:
		case <-r.quit:
			return
		}
	}
}

func (r *fileRecorder) Stop() error {
	r.mu.Lock()
	if !r.started || r.quit == nil {
		r.mu.Unlock()
		return nil
	}
	quit, done := r.quit, r.done
	r.quit = nil
	r.mu.Unlock()

	close(quit)
	<-done
	return nil
}
