package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/asticode/go-astits"

	"github.com/halftimetv/halftime/internal/fault"
)

// probeLimit bounds how much of a segment the container probe reads.
const probeLimit = 512 * 1024

// ProbeTS verifies that path is a decodable MPEG-TS file carrying a
// program association table. Segments from different encodes are only
// spliced together when each passes this check.
func ProbeTS(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening segment: %w", err)
	}
	defer f.Close()

	dmx := astits.NewDemuxer(ctx, io.LimitReader(f, probeLimit))
	for {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fault.New(fault.KindIncompatibleStreams, "no program association table in %s", path)
			}
			return fault.Wrap(fault.KindIncompatibleStreams, err, "demuxing %s", path)
		}
		if d.PAT != nil {
			return nil
		}
	}
}

// ProbeSegments probes every segment in the list, failing on the first
// incompatible file.
func ProbeSegments(ctx context.Context, segs []Segment) error {
	for _, s := range segs {
		if err := ProbeTS(ctx, s.Path); err != nil {
			return err
		}
	}
	return nil
}
