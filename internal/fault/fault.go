// Package fault defines the error taxonomy shared by the processing
// pipeline. Stages return a *Error carrying a machine-readable Kind; the
// job controller records it and the HTTP layer maps it onto a response.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindInvalidInput indicates a bad submission; no job is created.
	KindInvalidInput Kind = "invalid-input"
	// KindInvalidSubtitles indicates the subtitle file could not be parsed at all.
	KindInvalidSubtitles Kind = "invalid-subtitles"
	// KindNoCandidates indicates candidate generation returned zero placements.
	KindNoCandidates Kind = "no-candidates"
	// KindOracleParse indicates the oracle response stayed malformed after recovery.
	KindOracleParse Kind = "oracle-parse"
	// KindOracleUnreachable indicates an oracle transport failure.
	KindOracleUnreachable Kind = "oracle-unreachable"
	// KindUploadFailed indicates every ephemeral host rejected the clip.
	KindUploadFailed Kind = "upload-failed"
	// KindGenerationTimeout indicates the generation provider exceeded the hard deadline.
	KindGenerationTimeout Kind = "generation-timeout"
	// KindGenerationUnreachable indicates the polling error budget was exhausted.
	KindGenerationUnreachable Kind = "generation-unreachable"
	// KindIncompatibleStreams indicates concatenation inputs could not be normalized.
	KindIncompatibleStreams Kind = "incompatible-streams"
	// KindCancelled indicates the job was cancelled by the caller.
	KindCancelled Kind = "cancelled"
	// KindInternal is the last-resort bucket.
	KindInternal Kind = "internal"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a fault with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a fault wrapping an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, walking the wrap chain.
// Non-fault errors classify as KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Coerce returns err as a *Error, wrapping non-fault errors as KindInternal.
func Coerce(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: KindInternal, Message: err.Error(), Err: err}
}
