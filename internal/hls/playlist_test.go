package hls

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mogiioin/hls-m3u8/m3u8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePlaylistTemplate(t *testing.T) {
	segs := []Segment{
		{Index: 0, Path: "/out/segment000.ts", Duration: 10.0},
		{Index: 1, Path: "/out/segment001.ts", Duration: 10.0},
		{Index: 2, Path: "/out/segment002.ts", Duration: 4.337},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePlaylist(&buf, segs, nil))

	want := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXT-X-TARGETDURATION:10",
		"#EXT-X-MEDIA-SEQUENCE:0",
		"#EXTINF:10.000,",
		"segment000.ts",
		"#EXTINF:10.000,",
		"segment001.ts",
		"#EXTINF:4.337,",
		"segment002.ts",
		"#EXT-X-ENDLIST",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestEmittedPlaylistDecodesStrictly(t *testing.T) {
	segs := []Segment{
		{Index: 0, Path: "segment000.ts", Duration: 10.0},
		{Index: 1, Path: "segment001.ts", Duration: 6.5},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePlaylist(&buf, segs, nil))

	pl, listType, err := m3u8.DecodeFrom(&buf, true)
	require.NoError(t, err)
	require.Equal(t, m3u8.MEDIA, listType)

	media := pl.(*m3u8.MediaPlaylist)
	assert.True(t, media.Closed)
	assert.EqualValues(t, 2, media.Count())

	decoded := media.GetAllSegments()
	require.Len(t, decoded, 2)
	assert.Equal(t, "segment000.ts", decoded[0].URI)
	assert.InDelta(t, 10.0, decoded[0].Duration, 0.001)
	assert.InDelta(t, 6.5, decoded[1].Duration, 0.001)
}

func TestParsePlaylistRoundTrip(t *testing.T) {
	segs := []Segment{
		{Index: 0, Path: "/base/segment000.ts", Duration: 10.0},
		{Index: 1, Path: "/base/segment001.ts", Duration: 3.2},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePlaylist(&buf, segs, nil))

	parsed, err := ParsePlaylist(&buf, "/base")
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	for i := range segs {
		assert.Equal(t, segs[i].Path, parsed[i].Path)
		assert.InDelta(t, segs[i].Duration, parsed[i].Duration, 0.001)
		assert.Equal(t, i, parsed[i].Index)
	}
}

func TestParsePlaylistForgiving(t *testing.T) {
	// Out-of-spec playlist: unknown tags, missing version, absolute URI.
	input := `#EXTM3U
#EXT-X-SOMETHING-CUSTOM:yes
#EXTINF:9.5,
segment000.ts
#EXT-X-UNKNOWN
#EXTINF:3,title here
/abs/segment001.ts
`
	segs, err := ParsePlaylist(strings.NewReader(input), "/dir")
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, filepath.Join("/dir", "segment000.ts"), segs[0].Path)
	assert.InDelta(t, 9.5, segs[0].Duration, 0.001)
	assert.Equal(t, "/abs/segment001.ts", segs[1].Path)
	assert.InDelta(t, 3.0, segs[1].Duration, 0.001)
}

func TestParsePlaylistEmpty(t *testing.T) {
	_, err := ParsePlaylist(strings.NewReader("#EXTM3U\n#EXT-X-ENDLIST\n"), "")
	assert.Error(t, err)
}

func TestTargetDurationCeil(t *testing.T) {
	segs := []Segment{{Duration: 9.01}, {Duration: 10.0}, {Duration: 10.04}}
	assert.Equal(t, 11, TargetDuration(segs))

	assert.Equal(t, 10, TargetDuration([]Segment{{Duration: 10.0}}))
}

func TestSegmentFileName(t *testing.T) {
	assert.Equal(t, "segment000.ts", SegmentFileName(0))
	assert.Equal(t, "segment042.ts", SegmentFileName(42))
	assert.Equal(t, "segment123.ts", SegmentFileName(123))
}
