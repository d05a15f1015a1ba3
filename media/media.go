// Package media owns hardware media streams (camera, microphone) and the
// platform contracts used to acquire them.
package media

import (
	"context"
	"errors"
	"image"
)

type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

var (
	ErrPermissionDenied  = errors.New("media: permission denied")
	ErrDeviceUnavailable = errors.New("media: device unavailable")
	ErrInactive          = errors.New("media: handle is not active")
	ErrKindMismatch      = errors.New("media: wrong track kind")
)

// Platform is the media capability surface of the host: it hands out
// revocable streams of hardware tracks.
type Platform interface {
	GetUserMedia(ctx context.Context, kind Kind) (Stream, error)
}

type Stream interface {
	Tracks() []Track
}

type Track interface {
	ID() string
	Kind() Kind
	// Stop ends the track and frees the device behind it.
	Stop()
}

type VideoTrack interface {
	Track
	// Resolution is the native size of the pictures the track renders.
	Resolution() image.Point
	// Frame returns the picture rendered at call time.
	Frame() (image.Image, error)
}

type AudioTrack interface {
	Track
	NewRecorder() (Recorder, error)
}

// Recorder turns a live audio track into discrete binary chunks.
//
// Start returns the chunk channel; chunks are delivered in capture order.
// Stop flushes whatever is buffered, and once it returns no further chunk
// is produced and the channel is closed.
type Recorder interface {
	Start() (<-chan []byte, error)
	Stop() error
}
