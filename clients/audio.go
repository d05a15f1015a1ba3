package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"sort"
)

// --- Speech (/processAudio) ---
type AudioResp struct {
	Language      string  `json:"language"`
	Transcript    string  `json:"transcript"`
	SpeechRateWPM float64 `json:"speechRateWPM"`
	FillerRate    float64 `json:"fillerRate"`
	FillerCount   int     `json:"fillerCount"`
	// FillerWordsUsed lists the filler words found, most frequent first.
	FillerWordsUsed []string `json:"fillerWordsUsed"`
	// FillerWordCounts is set when the service reports per-word counts.
	FillerWordCounts map[string]int `json:"fillerWordCounts,omitempty"`
}

type audioWire struct {
	Language        string          `json:"language"`
	Transcript      string          `json:"transcript"`
	SpeechRateWPM   float64         `json:"speechRateWPM"`
	FillerRate      float64         `json:"fillerRate"`
	FillerCount     int             `json:"fillerCount"`
	FillerWordsUsed json.RawMessage `json:"fillerWordsUsed"`
}

// AnalyzeAudio uploads one recording as the multipart field "audio".
func (h *HTTP) AnalyzeAudio(ctx context.Context, payload []byte, filename string) (*AudioResp, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("audio", filename)
	if err != nil {
		return nil, &TransportError{Op: "analyze audio", Err: err}
	}
	if _, err = fw.Write(payload); err != nil {
		return nil, &TransportError{Op: "analyze audio", Err: err}
	}
	if err = w.Close(); err != nil {
		return nil, &TransportError{Op: "analyze audio", Err: err}
	}

	var wire audioWire
	if err := h.post(ctx, "analyze audio", "/processAudio", w.FormDataContentType(), &b, &wire); err != nil {
		return nil, err
	}

	words, counts, err := fillerWords(wire.FillerWordsUsed)
	if err != nil {
		return nil, &TransportError{Op: "analyze audio", Err: fmt.Errorf("analyze audio decode: %w", err)}
	}
	return &AudioResp{
		Language:         wire.Language,
		Transcript:       wire.Transcript,
		SpeechRateWPM:    wire.SpeechRateWPM,
		FillerRate:       wire.FillerRate,
		FillerCount:      wire.FillerCount,
		FillerWordsUsed:  words,
		FillerWordCounts: counts,
	}, nil
}

// fillerWords accepts either a list of words or a word->count object.
// Objects are ordered by descending count, ties alphabetically.
func fillerWords(raw json.RawMessage) ([]string, map[string]int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{}, nil, nil
	}
	if raw[0] == '[' {
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, nil, err
		}
		return list, nil, nil
	}

	var counts map[string]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, nil, err
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	return words, counts, nil
}
