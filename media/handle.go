package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Handle owns one acquired stream. A released handle is spent: acquire a
// new one instead of reactivating it.
type Handle struct {
	kind   Kind
	tracks []Track

	mu     sync.Mutex
	active bool
}

// Acquire requests a stream of the given kind from the platform. Errors
// other than ErrPermissionDenied are reported as ErrDeviceUnavailable.
func Acquire(ctx context.Context, p Platform, kind Kind) (*Handle, error) {
	if p == nil {
		return nil, fmt.Errorf("acquire %s: %w", kind, ErrDeviceUnavailable)
	}
	s, err := p.GetUserMedia(ctx, kind)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
			return nil, fmt.Errorf("acquire %s: %w", kind, err)
		}
		return nil, fmt.Errorf("acquire %s: %w: %w", kind, ErrDeviceUnavailable, err)
	}

	var tracks []Track
	for _, t := range s.Tracks() {
		if t.Kind() == kind {
			tracks = append(tracks, t)
			continue
		}
		// never hand out a track the caller did not ask for
		t.Stop()
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("acquire %s: no tracks: %w", kind, ErrDeviceUnavailable)
	}
	return &Handle{kind: kind, tracks: tracks, active: true}, nil
}

func (h *Handle) Kind() Kind { return h.kind }

func (h *Handle) Active() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *Handle) Tracks() []Track {
	out := make([]Track, len(h.tracks))
	copy(out, h.tracks)
	return out
}

// Video returns the first video track of an active video handle.
func (h *Handle) Video() (VideoTrack, error) {
	if !h.Active() {
		return nil, ErrInactive
	}
	for _, t := range h.tracks {
		if vt, ok := t.(VideoTrack); ok {
			return vt, nil
		}
	}
	return nil, ErrKindMismatch
}

// Audio returns the first audio track of an active audio handle.
func (h *Handle) Audio() (AudioTrack, error) {
	if !h.Active() {
		return nil, ErrInactive
	}
	for _, t := range h.tracks {
		if at, ok := t.(AudioTrack); ok {
			return at, nil
		}
	}
	return nil, ErrKindMismatch
}

// Release stops every track and marks the handle inactive. Releasing an
// inactive (or nil) handle does nothing.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return
	}
	h.active = false
	h.mu.Unlock()

	for _, t := range h.tracks {
		t.Stop()
	}
}
