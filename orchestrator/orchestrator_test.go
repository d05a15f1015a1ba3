package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/edmo-capture/capture"
	"github.com/maastricht-university/edmo-capture/capture/capturetest"
	"github.com/maastricht-university/edmo-capture/clients"
	"github.com/maastricht-university/edmo-capture/media"
	"github.com/maastricht-university/edmo-capture/media/mediatest"
	"github.com/maastricht-university/edmo-capture/orchestrator"
	"github.com/maastricht-university/edmo-capture/recording"
)

type analyzer struct {
	mu     sync.Mutex
	frames int
	audios [][]byte
}

func (a *analyzer) AnalyzeFrame(context.Context, string) (*clients.FrameResp, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frames++
	return &clients.FrameResp{Emotion: "happy", Image: "<data>"}, nil
}

func (a *analyzer) AnalyzeAudio(_ context.Context, payload []byte, _ string) (*clients.AudioResp, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audios = append(a.audios, payload)
	return &clients.AudioResp{Language: "EN", Transcript: "hi", FillerWordsUsed: []string{}}, nil
}

func newOrchestrator(t *testing.T) (*orchestrator.Orchestrator, *mediatest.Platform, *capturetest.Clock, *analyzer) {
	t.Helper()
	p := mediatest.NewPlatform(nil)
	clk := &capturetest.Clock{}
	a := &analyzer{}
	o := orchestrator.New(p, a, orchestrator.Options{
		Ticker: func(d time.Duration) capture.Ticker { return clk.NewTicker(d) },
	})
	t.Cleanup(func() {
		o.Teardown()
		o.Wait()
	})
	return o, p, clk, a
}

func TestTrackingNeedsCamera(t *testing.T) {
	o, _, _, _ := newOrchestrator(t)
	assert.ErrorIs(t, o.StartTracking(), capture.ErrNoActiveVideo)
}

func TestCameraMustBeStoppedBeforeRestart(t *testing.T) {
	o, p, _, _ := newOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.StartCamera(ctx))
	assert.ErrorIs(t, o.StartCamera(ctx), orchestrator.ErrCameraActive)
	assert.Equal(t, 1, p.Calls(media.KindVideo))

	o.StopCamera()
	require.NoError(t, o.StartCamera(ctx))
	assert.Equal(t, 2, p.Calls(media.KindVideo))
	assert.Equal(t, 1, p.Videos()[0].Stops())
}

func TestCameraPermissionDenied(t *testing.T) {
	o, p, _, _ := newOrchestrator(t)
	p.Errs[media.KindVideo] = media.ErrPermissionDenied

	err := o.StartCamera(context.Background())
	assert.ErrorIs(t, err, media.ErrPermissionDenied)
	assert.False(t, o.Status().Camera)
}

func TestTrackingTickStoresFrameResult(t *testing.T) {
	o, p, clk, _ := newOrchestrator(t)
	require.NoError(t, o.StartCamera(context.Background()))
	require.NoError(t, o.StartTracking())

	require.True(t, clk.Tick(time.Now()))
	require.Eventually(t, func() bool {
		_, ok := o.FrameResult()
		return ok
	}, time.Second, 5*time.Millisecond)

	r, _ := o.FrameResult()
	assert.Equal(t, "happy", r.Emotion)
	assert.Equal(t, "<data>", r.Image)
	assert.Equal(t, 1, p.Videos()[0].Frames())
}

func TestStopCameraStopsTrackingFirst(t *testing.T) {
	o, p, clk, _ := newOrchestrator(t)
	require.NoError(t, o.StartCamera(context.Background()))
	require.NoError(t, o.StartTracking())

	o.StopCamera()
	assert.Equal(t, 0, clk.Active())
	assert.False(t, o.Status().Tracking)
	assert.False(t, clk.Tick(time.Now()))
	assert.Zero(t, p.Videos()[0].FramesAfterStop())
}

func TestTeardownReleasesEverythingOnce(t *testing.T) {
	o, p, clk, a := newOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.StartCamera(ctx))
	require.NoError(t, o.StartTracking())
	require.NoError(t, o.StartRecording(ctx))
	p.LastAudio().Recorder.Push([]byte("pcm"))

	o.Teardown()
	o.Teardown()
	o.Wait()

	assert.Equal(t, 0, clk.Active())
	require.Len(t, p.Videos(), 1)
	require.Len(t, p.Audios(), 1)
	assert.Equal(t, 1, p.Videos()[0].Stops())
	assert.Equal(t, 1, p.Audios()[0].Stops())
	assert.Zero(t, p.Videos()[0].FramesAfterStop())

	st := o.Status()
	assert.True(t, st.Closed)
	assert.False(t, st.Camera)
	assert.False(t, st.Tracking)
	assert.Equal(t, recording.StateIdle, st.Recording)

	a.mu.Lock()
	assert.Equal(t, [][]byte{[]byte("pcm")}, a.audios)
	a.mu.Unlock()
	require.NotNil(t, o.AudioResult())
	assert.Equal(t, "EN", o.AudioResult().Language)
}

func TestTeardownWithOnlyRecording(t *testing.T) {
	o, p, _, _ := newOrchestrator(t)
	require.NoError(t, o.StartRecording(context.Background()))

	o.Teardown()
	o.Wait()

	assert.Empty(t, p.Videos())
	assert.Equal(t, 1, p.Audios()[0].Stops())
}

func TestClosedRejectsStarts(t *testing.T) {
	o, p, _, _ := newOrchestrator(t)
	o.Teardown()

	ctx := context.Background()
	assert.ErrorIs(t, o.StartCamera(ctx), orchestrator.ErrClosed)
	assert.ErrorIs(t, o.StartTracking(), orchestrator.ErrClosed)
	assert.ErrorIs(t, o.StartRecording(ctx), orchestrator.ErrClosed)
	assert.Zero(t, p.Calls(media.KindVideo))
	assert.Zero(t, p.Calls(media.KindAudio))
}

func TestRecordingIndependentOfCamera(t *testing.T) {
	o, p, clk, _ := newOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.StartCamera(ctx))
	require.NoError(t, o.StartTracking())
	require.NoError(t, o.StartRecording(ctx))

	o.StopRecording()
	o.Wait()

	st := o.Status()
	assert.True(t, st.Camera)
	assert.True(t, st.Tracking)
	assert.Equal(t, 1, clk.Active())
	assert.Equal(t, 1, p.Audios()[0].Stops())
	assert.Zero(t, p.Videos()[0].Stops())
	assert.NotEmpty(t, st.Session)
	assert.Equal(t, o.ID(), st.Session)
}
