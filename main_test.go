package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/edmo-capture/capture"
	"github.com/maastricht-university/edmo-capture/clients"
	"github.com/maastricht-university/edmo-capture/orchestrator"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, orchestrator.Status{
		Session: "s-1",
		Frame:   &capture.Result{Seq: 3, Emotion: "happy"},
		Audio: &clients.AudioResp{
			Language:        "EN",
			Transcript:      "um hello",
			SpeechRateWPM:   98.5,
			FillerRate:      0.5,
			FillerCount:     1,
			FillerWordsUsed: []string{"um"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "session s-1")
	assert.Contains(t, out, "happy (tick 3)")
	assert.Contains(t, out, "98.50 wpm")
	assert.Contains(t, out, "[um]")
}

func TestConfigCommand(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	var buf bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"config", "--url", "http://analysis:5000"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "url: http://analysis:5000")
}

func TestRunRequiresCamera(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--duration", "10ms"})
	assert.Error(t, cmd.Execute())
}

type analysisServer struct {
	*httptest.Server
	frames atomic.Int32
	audios atomic.Int32
	bytes  atomic.Int32
}

func newAnalysisServer(t *testing.T) *analysisServer {
	t.Helper()
	a := &analysisServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/analyzeFrame", func(w http.ResponseWriter, r *http.Request) {
		a.frames.Add(1)
		_, _ = io.WriteString(w, `{"emotion":"happy","image":"data:image/jpeg;base64,AAAA"}`)
	})
	mux.HandleFunc("/processAudio", func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("audio")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"No audio file provided"}`)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		a.bytes.Store(int32(len(b)))
		a.audios.Add(1)
		_, _ = io.WriteString(w, `{"language":"EN","transcript":"hello from the lab","speechRateWPM":110,"fillerRate":0,"fillerCount":0,"fillerWordsUsed":{}}`)
	})
	a.Server = httptest.NewServer(mux)
	t.Cleanup(a.Close)
	return a
}

// runArgs writes a camera image, a microphone file and a config into a
// temp dir and returns the arguments for a short recorded run.
func runArgs(t *testing.T, url string, extra ...string) []string {
	t.Helper()
	dir := t.TempDir()

	img := filepath.Join(dir, "camera.png")
	f, err := os.Create(img)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 32, 24))))
	require.NoError(t, f.Close())

	wav := filepath.Join(dir, "mic.wav")
	require.NoError(t, os.WriteFile(wav, bytes.Repeat([]byte{7}, 64), 0o644))

	conf := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(conf, []byte("devices:\n  chunk_size: 8\n  timeslice: 5ms\n"), 0o644))

	return append([]string{
		"run",
		"--config", conf,
		"--url", url,
		"--video", img,
		"--audio", wav,
		"--interval", "20ms",
		"--duration", "300ms",
		"--report", "0",
		"--record",
	}, extra...)
}

func TestRunEndToEnd(t *testing.T) {
	srv := newAnalysisServer(t)

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(runArgs(t, srv.URL))
	require.NoError(t, cmd.Execute())

	assert.Positive(t, srv.frames.Load())
	// the recording is only uploaded once teardown stops it
	assert.Equal(t, int32(1), srv.audios.Load())
	assert.Positive(t, srv.bytes.Load())

	assert.Contains(t, out.String(), "emotion:     happy")
	assert.Contains(t, out.String(), "transcript:  hello from the lab")
}

func TestRunJSONStatus(t *testing.T) {
	srv := newAnalysisServer(t)

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(runArgs(t, srv.URL, "--json"))
	require.NoError(t, cmd.Execute())

	var st map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &st))
	assert.Equal(t, true, st["closed"])
	assert.Equal(t, false, st["camera"])
	assert.Equal(t, false, st["tracking"])
	assert.Equal(t, "idle", st["recording"])

	audio, ok := st["audio"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello from the lab", audio["transcript"])
	frame, ok := st["frame"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "happy", frame["Emotion"])
}
