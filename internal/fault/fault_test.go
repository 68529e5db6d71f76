package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "direct fault",
			err:  New(KindNoCandidates, "zero candidates"),
			want: KindNoCandidates,
		},
		{
			name: "wrapped fault",
			err:  fmt.Errorf("placement stage: %w", New(KindOracleParse, "bad json")),
			want: KindOracleParse,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindOracleUnreachable, cause, "calling oracle")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "oracle-unreachable")
	assert.Contains(t, err.Error(), "calling oracle")
}

func TestCoerce(t *testing.T) {
	require.Nil(t, Coerce(nil))

	fe := Coerce(errors.New("disk full"))
	assert.Equal(t, KindInternal, fe.Kind)
	assert.Equal(t, "disk full", fe.Message)

	orig := New(KindCancelled, "stopped")
	assert.Same(t, orig, Coerce(orig))
}
