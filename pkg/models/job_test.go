package models_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestDeriveJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		children []string
		want     string
	}{
		{
			name:     "no children stays started",
			children: nil,
			want:     models.JobStatusStarted,
		},
		{
			name:     "all success",
			children: []string{models.ChunkStatusSuccess, models.ChunkStatusSuccess, models.ChunkStatusSuccess},
			want:     models.JobStatusSuccess,
		},
		{
			name:     "one error among successes",
			children: []string{models.ChunkStatusSuccess, models.ChunkStatusError},
			want:     models.JobStatusPartialSuccess,
		},
		{
			name:     "one timeout among successes",
			children: []string{models.ChunkStatusTimeout, models.ChunkStatusSuccess},
			want:     models.JobStatusPartialSuccess,
		},
		{
			name:     "all failed",
			children: []string{models.ChunkStatusError, models.ChunkStatusTimeout},
			want:     models.JobStatusPartialSuccess,
		},
		{
			name:     "pending child keeps job started",
			children: []string{models.ChunkStatusSuccess, models.ChunkStatusPending},
			want:     models.JobStatusStarted,
		},
		{
			name:     "started child keeps job started even with an error sibling",
			children: []string{models.ChunkStatusError, models.ChunkStatusStarted},
			want:     models.JobStatusStarted,
		},
		{
			name:     "created child keeps job started",
			children: []string{models.ChunkStatusCreated},
			want:     models.JobStatusStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.DeriveJobStatus(tt.children))
		})
	}
}

func TestIsTerminalChunkStatus(t *testing.T) {
	assert.True(t, models.IsTerminalChunkStatus(models.ChunkStatusSuccess))
	assert.True(t, models.IsTerminalChunkStatus(models.ChunkStatusError))
	assert.True(t, models.IsTerminalChunkStatus(models.ChunkStatusTimeout))
	assert.False(t, models.IsTerminalChunkStatus(models.ChunkStatusCreated))
	assert.False(t, models.IsTerminalChunkStatus(models.ChunkStatusPending))
	assert.False(t, models.IsTerminalChunkStatus(models.ChunkStatusStarted))
}

func TestWorkRef(t *testing.T) {
	assert.True(t, models.Idle().IsIdle())

	chunkID := uuid.New()
	ref := models.ChunkWork(chunkID)
	assert.False(t, ref.IsIdle())
	assert.Equal(t, models.WorkChunk, ref.Kind)
	assert.Equal(t, chunkID, ref.ChunkID)

	infernalID := uuid.New()
	ref = models.InfernalWork(infernalID)
	assert.Equal(t, models.WorkInfernal, ref.Kind)
	assert.Equal(t, infernalID, ref.JobID)
}
