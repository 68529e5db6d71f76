package subtitle

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultMinGap is the minimum inter-cue silence considered a gap.
const DefaultMinGap = 1500 * time.Millisecond

// Gap is a silent interval between adjacent cues, with surrounding
// dialogue for prompt context.
type Gap struct {
	Start         time.Duration `json:"start"`
	End           time.Duration `json:"end"`
	Duration      time.Duration `json:"duration"`
	ContextBefore string        `json:"context_before"`
	ContextAfter  string        `json:"context_after"`
}

// FindGaps emits a Gap for every adjacent cue pair whose silence is at
// least minGap, ordered by duration descending. Context windows span up
// to three cues on each side, clamped to the cue list.
func FindGaps(cues []Cue, minGap time.Duration) []Gap {
	if minGap <= 0 {
		minGap = DefaultMinGap
	}

	var gaps []Gap
	for i := 0; i < len(cues)-1; i++ {
		silence := cues[i+1].Start - cues[i].End
		if silence < minGap {
			continue
		}
		gaps = append(gaps, Gap{
			Start:         cues[i].End,
			End:           cues[i+1].Start,
			Duration:      silence,
			ContextBefore: joinTexts(cues, i-2, i),
			ContextAfter:  joinTexts(cues, i+1, i+3),
		})
	}

	sort.SliceStable(gaps, func(a, b int) bool { return gaps[a].Duration > gaps[b].Duration })
	return gaps
}

// joinTexts concatenates cue texts for indices [lo, hi], clamped to the
// cue list bounds.
func joinTexts(cues []Cue, lo, hi int) string {
	if lo < 0 {
		lo = 0
	}
	if hi > len(cues)-1 {
		hi = len(cues) - 1
	}
	parts := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		parts = append(parts, cues[i].Text)
	}
	return strings.Join(parts, " ")
}

// DefaultSummaryCap bounds the number of cues sampled into a transcript
// summary.
const DefaultSummaryCap = 100

// Summary renders a sampled transcript for oracle prompting. When the cue
// count exceeds cap, every floor(n/cap)-th cue is sampled. Each line is
// "[HH:MM:SS,mmm] text".
func Summary(cues []Cue, cap int) string {
	if cap <= 0 {
		cap = DefaultSummaryCap
	}
	step := 1
	if len(cues) > cap {
		step = len(cues) / cap
	}

	var b strings.Builder
	for i := 0; i < len(cues); i += step {
		fmt.Fprintf(&b, "[%s] %s\n", FormatTimestamp(cues[i].Start), cues[i].Text)
	}
	return b.String()
}
