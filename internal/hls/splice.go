package hls

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/halftimetv/halftime/internal/fault"
)

// RangeForWindow computes the half-open segment range [a, b) covering the
// time window [t0, t1) in seconds, using the actual per-segment durations
// rather than assuming a uniform nominal length.
func RangeForWindow(segs []Segment, t0, t1 float64) (a, b int) {
	if t0 < 0 {
		t0 = 0
	}
	if t1 < t0 {
		t1 = t0
	}

	a = len(segs)
	b = len(segs)
	var elapsed float64
	for i, s := range segs {
		next := elapsed + s.Duration
		if a == len(segs) && t0 < next {
			a = i
		}
		if t1 <= next {
			b = i + 1
			break
		}
		elapsed = next
	}
	if a > b {
		a = b
	}
	return a, b
}

// Splice copies O[0..a) ++ E ++ O[b..N) into dstDir with sequentially
// renumbered segment files, and returns the merged segment list. K may
// differ from b-a; the merged count is a + K + (N-b).
func Splice(dstDir string, orig, edited []Segment, a, b int) ([]Segment, error) {
	n := len(orig)
	if a < 0 || b < a || b > n {
		return nil, fault.New(fault.KindInternal, "splice range [%d,%d) out of bounds for %d segments", a, b, n)
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating merged dir: %w", err)
	}

	sources := make([]Segment, 0, a+len(edited)+(n-b))
	sources = append(sources, orig[:a]...)
	sources = append(sources, edited...)
	sources = append(sources, orig[b:]...)

	merged := make([]Segment, 0, len(sources))
	for i, src := range sources {
		dst := filepath.Join(dstDir, SegmentFileName(i))
		if err := copyFile(src.Path, dst); err != nil {
			return nil, fmt.Errorf("copying segment %d: %w", i, err)
		}
		merged = append(merged, Segment{Index: i, Path: dst, Duration: src.Duration})
	}

	if want := a + len(edited) + (n - b); len(merged) != want {
		return nil, fault.New(fault.KindInternal, "splice produced %d segments, want %d", len(merged), want)
	}
	return merged, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
