package media_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/edmo-capture/media"
	"github.com/maastricht-university/edmo-capture/media/mediatest"
)

func TestAcquireVideo(t *testing.T) {
	p := mediatest.NewPlatform(nil)

	h, err := media.Acquire(context.Background(), p, media.KindVideo)
	require.NoError(t, err)
	assert.True(t, h.Active())
	assert.Equal(t, media.KindVideo, h.Kind())
	assert.Len(t, h.Tracks(), 1)

	vt, err := h.Video()
	require.NoError(t, err)
	assert.Equal(t, 64, vt.Resolution().X)

	_, err = h.Audio()
	assert.ErrorIs(t, err, media.ErrKindMismatch)
}

func TestAcquireErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"permission", media.ErrPermissionDenied, media.ErrPermissionDenied},
		{"unavailable", media.ErrDeviceUnavailable, media.ErrDeviceUnavailable},
		{"other", errors.New("usb reset"), media.ErrDeviceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := mediatest.NewPlatform(nil)
			p.Errs[media.KindAudio] = tc.err

			h, err := media.Acquire(context.Background(), p, media.KindAudio)
			assert.Nil(t, h)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAcquireNilPlatform(t *testing.T) {
	_, err := media.Acquire(context.Background(), nil, media.KindVideo)
	assert.ErrorIs(t, err, media.ErrDeviceUnavailable)
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := mediatest.NewPlatform(nil)
	h, err := media.Acquire(context.Background(), p, media.KindVideo)
	require.NoError(t, err)

	h.Release()
	assert.NotPanics(t, h.Release)
	h.Release()

	assert.False(t, h.Active())
	assert.Equal(t, 1, p.Videos()[0].Stops())

	_, err = h.Video()
	assert.ErrorIs(t, err, media.ErrInactive)
}

func TestReleaseNilHandle(t *testing.T) {
	var h *media.Handle
	assert.NotPanics(t, h.Release)
	assert.False(t, h.Active())
}

func TestReleaseStopsAudioRecorder(t *testing.T) {
	p := mediatest.NewPlatform(nil)
	h, err := media.Acquire(context.Background(), p, media.KindAudio)
	require.NoError(t, err)

	h.Release()
	at := p.LastAudio()
	assert.Equal(t, 1, at.Stops())
	assert.True(t, at.Recorder.Stopped())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "video", media.KindVideo.String())
	assert.Equal(t, "audio", media.KindAudio.String())
	assert.Equal(t, "unknown", media.Kind(7).String())
}
