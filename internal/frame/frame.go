// Package frame extracts still frames for visual placement analysis and
// prepares them for transport to a vision model.
package frame

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// maxWidth bounds the pixel width of frames sent to the vision model.
// Full-resolution frames waste tokens without improving selection.
const maxWidth = 768

// jpegQuality is the re-encode quality for downscaled frames.
const jpegQuality = 80

// Grabber extracts a single JPEG frame from a media file.
type Grabber interface {
	GrabFrame(ctx context.Context, src string, t float64, dst string) error
}

// Frame is one extracted frame, base64-encoded for prompt embedding.
type Frame struct {
	Timestamp float64 `json:"timestamp"`
	Path      string  `json:"path"`
	Base64    string  `json:"base64"`
}

// Extractor grabs frames at given timestamps into a scratch directory.
type Extractor struct {
	grabber Grabber
}

// NewExtractor creates an Extractor backed by the given frame grabber.
func NewExtractor(grabber Grabber) *Extractor {
	return &Extractor{grabber: grabber}
}

// ExtractBase64 grabs one frame per timestamp into dir and returns each
// as a downscaled, base64-encoded JPEG. A failed grab aborts the batch;
// the caller owns dir cleanup.
func (e *Extractor) ExtractBase64(ctx context.Context, src string, timestamps []float64, dir string) ([]Frame, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating frame dir: %w", err)
	}

	frames := make([]Frame, 0, len(timestamps))
	for i, t := range timestamps {
		path := filepath.Join(dir, fmt.Sprintf("frame_%d_%.1f.jpg", i, t))
		if err := e.grabber.GrabFrame(ctx, src, t, path); err != nil {
			return nil, fmt.Errorf("extracting frame %d at %.1fs: %w", i, t, err)
		}

		encoded, err := EncodeFile(path)
		if err != nil {
			return nil, fmt.Errorf("encoding frame %d: %w", i, err)
		}
		frames = append(frames, Frame{Timestamp: t, Path: path, Base64: encoded})
	}
	return frames, nil
}

// EncodeFile reads a JPEG, downscales it when wider than the transport
// bound, and returns the standard base64 encoding of the result.
func EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	resized, err := Downscale(data)
	if err != nil {
		// A frame that fails to decode still gets sent; the vision
		// model rejects it with better context than we have here.
		resized = data
	}
	return base64.StdEncoding.EncodeToString(resized), nil
}

// Downscale re-encodes a JPEG to at most maxWidth pixels wide,
// preserving aspect ratio. Images already within bounds pass through
// unchanged.
func Downscale(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxWidth {
		return data, nil
	}

	scale := float64(maxWidth) / float64(bounds.Dx())
	height := int(float64(bounds.Dy()) * scale)
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding downscaled frame: %w", err)
	}
	return buf.Bytes(), nil
}
