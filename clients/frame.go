package clients

import (
	"bytes"
	"context"
	"encoding/json"
)

// --- Frame emotion (/analyzeFrame) ---
type FrameReq struct {
	Image string `json:"image"`
}
type FrameResp struct {
	Emotion string `json:"emotion"`
	Image   string `json:"image"`
}

// AnalyzeFrame classifies the face in one encoded frame. image is a data
// URL ("data:image/jpeg;base64,..."); the reply carries the dominant
// emotion and the annotated picture in the same encoding.
func (h *HTTP) AnalyzeFrame(ctx context.Context, image string) (*FrameResp, error) {
	b, _ := json.Marshal(FrameReq{Image: image})

	var out FrameResp
	if err := h.post(ctx, "analyze frame", "/analyzeFrame", "application/json", bytes.NewReader(b), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
