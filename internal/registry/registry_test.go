package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/store"
	"github.com/nucleohub/seqdispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsumerStore struct {
	consumers map[string]*models.Consumer
	chunks    map[uuid.UUID]*models.JobChunk
	infernal  map[uuid.UUID]*models.InfernalJob
	released  []string
}

func newFakeConsumerStore() *fakeConsumerStore {
	return &fakeConsumerStore{
		consumers: make(map[string]*models.Consumer),
		chunks:    make(map[uuid.UUID]*models.JobChunk),
		infernal:  make(map[uuid.UUID]*models.InfernalJob),
	}
}

func (f *fakeConsumerStore) UpsertConsumer(_ context.Context, ip string, port int) error {
	f.consumers[ip] = &models.Consumer{IP: ip, Port: port, Status: models.ConsumerAvailable, Work: models.Idle()}
	return nil
}

func (f *fakeConsumerStore) FindConsumersByStatus(_ context.Context, status string) ([]*models.Consumer, error) {
	var out []*models.Consumer
	for _, c := range f.consumers {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConsumerStore) MarkConsumerBusy(_ context.Context, ip string, ref models.WorkRef) error {
	c, ok := f.consumers[ip]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = models.ConsumerBusy
	c.Work = ref
	return nil
}

func (f *fakeConsumerStore) ReleaseConsumer(_ context.Context, ip string) error {
	c, ok := f.consumers[ip]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = models.ConsumerAvailable
	c.Work = models.Idle()
	f.released = append(f.released, ip)
	return nil
}

func (f *fakeConsumerStore) GetJobChunkByID(_ context.Context, id uuid.UUID) (*models.JobChunk, error) {
	chunk, ok := f.chunks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return chunk, nil
}

func (f *fakeConsumerStore) GetInfernalJobByID(_ context.Context, id uuid.UUID) (*models.InfernalJob, error) {
	job, ok := f.infernal[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeConsumerStore) addBusy(ip string, ref models.WorkRef) {
	f.consumers[ip] = &models.Consumer{IP: ip, Port: 8090, Status: models.ConsumerBusy, Work: ref}
}

func TestRegisterSelfAndFindAvailable(t *testing.T) {
	f := newFakeConsumerStore()
	r := New(f)
	ctx := context.Background()

	require.NoError(t, r.RegisterSelf(ctx, "10.0.0.1", 8090))

	available, err := r.FindAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "10.0.0.1", available[0].IP)
	assert.True(t, available[0].Work.IsIdle())
}

func TestMarkBusyAndRelease(t *testing.T) {
	f := newFakeConsumerStore()
	r := New(f)
	ctx := context.Background()

	require.NoError(t, r.RegisterSelf(ctx, "10.0.0.1", 8090))
	require.NoError(t, r.MarkBusy(ctx, "10.0.0.1", models.ChunkWork(uuid.New())))

	busy, err := r.FindBusy(ctx)
	require.NoError(t, err)
	require.Len(t, busy, 1)

	require.NoError(t, r.Release(ctx, "10.0.0.1"))
	busy, err = r.FindBusy(ctx)
	require.NoError(t, err)
	assert.Empty(t, busy)
}

func TestReconcileOrphans_FreesConsumerWithTerminalChunk(t *testing.T) {
	f := newFakeConsumerStore()
	chunkID := uuid.New()
	f.chunks[chunkID] = &models.JobChunk{ID: chunkID, Status: models.ChunkStatusSuccess}
	f.addBusy("10.0.0.1", models.ChunkWork(chunkID))

	freed, err := New(f).ReconcileOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, freed)
	assert.Equal(t, []string{"10.0.0.1"}, f.released)
}

func TestReconcileOrphans_KeepsConsumerWithRunningChunk(t *testing.T) {
	f := newFakeConsumerStore()
	chunkID := uuid.New()
	f.chunks[chunkID] = &models.JobChunk{ID: chunkID, Status: models.ChunkStatusStarted}
	f.addBusy("10.0.0.1", models.ChunkWork(chunkID))

	freed, err := New(f).ReconcileOrphans(context.Background())
	require.NoError(t, err)
	assert.Zero(t, freed)
	assert.Empty(t, f.released)
}

func TestReconcileOrphans_FreesConsumerWithMissingChunk(t *testing.T) {
	f := newFakeConsumerStore()
	f.addBusy("10.0.0.1", models.ChunkWork(uuid.New()))

	freed, err := New(f).ReconcileOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, freed)
}

func TestReconcileOrphans_FreesBusyConsumerWithNoWorkRef(t *testing.T) {
	f := newFakeConsumerStore()
	f.addBusy("10.0.0.1", models.Idle())

	freed, err := New(f).ReconcileOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, freed)
}

func TestReconcileOrphans_InfernalWork(t *testing.T) {
	f := newFakeConsumerStore()
	doneID := uuid.New()
	runningID := uuid.New()
	f.infernal[doneID] = &models.InfernalJob{ID: doneID, Status: models.ChunkStatusTimeout}
	f.infernal[runningID] = &models.InfernalJob{ID: runningID, Status: models.ChunkStatusStarted}
	f.addBusy("10.0.0.1", models.InfernalWork(doneID))
	f.addBusy("10.0.0.2", models.InfernalWork(runningID))

	freed, err := New(f).ReconcileOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, freed)
	assert.Equal(t, []string{"10.0.0.1"}, f.released)
}
