package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/maastricht-university/edmo-capture/media"
)

const dataURLPrefix = "data:image/jpeg;base64,"

// grab copies the picture the track renders right now into a still image
// of the track's native resolution.
func grab(vt media.VideoTrack) (*image.RGBA, error) {
	size := vt.Resolution()
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("capture: video track has no resolution yet")
	}
	src, err := vt.Frame()
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	sb := src.Bounds()
	if sb.Size() == size {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	}
	return dst, nil
}

// encodeDataURL encodes img as a base64 JPEG data URL.
func encodeDataURL(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("capture: encode jpeg: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
