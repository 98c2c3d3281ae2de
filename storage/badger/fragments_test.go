package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragments_RoundTrip(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	version := time.Now().UTC().Truncate(time.Second)

	frags := []core.ContentFragment{
		{Text: "one", Index: 0, Source: core.SourceRef{Type: core.SourceDocument, ID: 5}, Embedding: []float32{1, 0}},
		{Text: "two", Index: 1, Source: core.SourceRef{Type: core.SourceDocument, ID: 5}, Embedding: []float32{0, 1}},
	}
	require.NoError(t, repos.Fragments.PutFragments(ctx, 5, version, frags))

	got, gotVersion, err := repos.Fragments.GetFragments(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, frags, got)
	assert.True(t, version.Equal(gotVersion))

	require.NoError(t, repos.Fragments.DeleteFragments(ctx, 5))
	_, _, err = repos.Fragments.GetFragments(ctx, 5)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	// Deleting again is not an error.
	require.NoError(t, repos.Fragments.DeleteFragments(ctx, 5))
}

func TestCheckpoints(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	cp, err := repos.Checkpoints.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, repos.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{ProcessorType: "reembed", LastID: 9, Processed: 3}))
	cp, err = repos.Checkpoints.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, core.ID(9), cp.LastID)
	assert.Equal(t, 3, cp.Processed)
	assert.False(t, cp.UpdatedAt.IsZero())

	require.NoError(t, repos.Checkpoints.DeleteCheckpoint(ctx, "reembed"))
	cp, err = repos.Checkpoints.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, cp)
	// Deleting a missing checkpoint is fine.
	require.NoError(t, repos.Checkpoints.DeleteCheckpoint(ctx, "reembed"))

	assert.ErrorIs(t, repos.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{}), storage.ErrEmptyProcessorType)
	_, err = repos.Checkpoints.LoadCheckpoint(ctx, "")
	assert.ErrorIs(t, err, storage.ErrEmptyProcessorType)
}
