package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftimetv/halftime/internal/job"
)

func TestGetHealth(t *testing.T) {
	handler := NewHealthHandler("1.2.3")

	out, err := handler.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "1.2.3", out.Body.Version)
	assert.Equal(t, "unknown", out.Body.Checks["analytics_db"])
	assert.Greater(t, out.Body.CPUInfo.Cores, 0)
}

func TestGetHealthJobGauges(t *testing.T) {
	store := job.NewStore()
	root := t.TempDir()

	queued := job.New("u", job.Request{}, root)
	store.Put(queued)

	running := job.New("u", job.Request{}, root)
	running.MarkProcessing()
	store.Put(running)

	done := job.New("u", job.Request{}, root)
	done.MarkCompleted()
	store.Put(done)

	handler := NewHealthHandler("dev").WithJobStore(store)
	out, err := handler.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Body.Jobs.Queued)
	assert.Equal(t, 1, out.Body.Jobs.Processing)
	assert.Equal(t, 1, out.Body.Jobs.Completed)
	assert.Equal(t, 0, out.Body.Jobs.Failed)
}
