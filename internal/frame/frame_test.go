package frame

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGrabber struct {
	calls   []float64
	payload []byte
	err     error
}

func (g *fakeGrabber) GrabFrame(_ context.Context, _ string, t float64, dst string) error {
	g.calls = append(g.calls, t)
	if g.err != nil {
		return g.err
	}
	return os.WriteFile(dst, g.payload, 0o644)
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestExtractBase64(t *testing.T) {
	grabber := &fakeGrabber{payload: encodeJPEG(t, 320, 180)}
	dir := filepath.Join(t.TempDir(), "frames")

	frames, err := NewExtractor(grabber).ExtractBase64(context.Background(), "/in.mp4", []float64{12.5, 310}, dir)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, []float64{12.5, 310}, grabber.calls)
	assert.Equal(t, filepath.Join(dir, "frame_0_12.5.jpg"), frames[0].Path)
	assert.Equal(t, filepath.Join(dir, "frame_1_310.0.jpg"), frames[1].Path)
	assert.Equal(t, 12.5, frames[0].Timestamp)

	// Small frames pass through the downscale untouched.
	decoded, err := base64.StdEncoding.DecodeString(frames[0].Base64)
	require.NoError(t, err)
	assert.Equal(t, grabber.payload, decoded)
}

func TestExtractBase64GrabFailureAborts(t *testing.T) {
	grabber := &fakeGrabber{err: errors.New("no such stream")}

	_, err := NewExtractor(grabber).ExtractBase64(context.Background(), "/in.mp4", []float64{1}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such stream")
}

func TestEncodeFileFallsBackOnUndecodableData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jpg")
	raw := []byte("not a jpeg at all")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	encoded, err := EncodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), encoded)

	_, err = EncodeFile(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestDownscaleBoundsWidth(t *testing.T) {
	wide := encodeJPEG(t, 1920, 1080)

	out, err := Downscale(wide)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 768, img.Bounds().Dx())
	assert.Equal(t, 432, img.Bounds().Dy(), "aspect ratio preserved")
	assert.Less(t, len(out), len(wide))
}

func TestDownscalePassThrough(t *testing.T) {
	small := encodeJPEG(t, 640, 360)

	out, err := Downscale(small)
	require.NoError(t, err)
	assert.Equal(t, small, out)

	_, err = Downscale([]byte("garbage"))
	assert.Error(t, err)
}
