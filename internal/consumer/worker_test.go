package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/delegate"
	"github.com/nucleohub/seqdispatch/internal/store"
	"github.com/nucleohub/seqdispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResultStore struct {
	mu sync.Mutex

	unitID           uuid.UUID
	chunkState       string // status reported back for the unit, default started
	infernalState    string
	chunkStatuses    []string
	infernalStatuses []string
	chunkHits        []models.Hit
	infernalHits     []models.Hit
	recomputed       []uuid.UUID
	insertErr        error
}

// id returns the stable row id the fake hands out for the unit.
func (f *fakeResultStore) id() uuid.UUID {
	if f.unitID == uuid.Nil {
		f.unitID = uuid.New()
	}
	return f.unitID
}

func (f *fakeResultStore) SetJobChunkStatus(_ context.Context, _ uuid.UUID, _, status string, _ ...store.UnitUpdateOption) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkStatuses = append(f.chunkStatuses, status)
	return f.id(), nil
}

func (f *fakeResultStore) SetInfernalJobStatus(_ context.Context, _ uuid.UUID, status string, _ ...store.UnitUpdateOption) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infernalStatuses = append(f.infernalStatuses, status)
	return f.id(), nil
}

func (f *fakeResultStore) GetJobChunkByID(_ context.Context, id uuid.UUID) (*models.JobChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.chunkState
	if status == "" {
		status = models.ChunkStatusStarted
	}
	return &models.JobChunk{ID: id, Status: status}, nil
}

func (f *fakeResultStore) GetInfernalJobByID(_ context.Context, id uuid.UUID) (*models.InfernalJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.infernalState
	if status == "" {
		status = models.ChunkStatusStarted
	}
	return &models.InfernalJob{ID: id, Status: status}, nil
}

func (f *fakeResultStore) UpdateJobStatusFromChildren(_ context.Context, jobID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputed = append(f.recomputed, jobID)
	return models.JobStatusStarted, nil
}

func (f *fakeResultStore) InsertChunkResults(_ context.Context, _ uuid.UUID, hits []models.Hit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.chunkHits = append(f.chunkHits, hits...)
	return nil
}

func (f *fakeResultStore) InsertInfernalResults(_ context.Context, _ uuid.UUID, hits []models.Hit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infernalHits = append(f.infernalHits, hits...)
	return nil
}

type fakeRegistrar struct {
	mu         sync.Mutex
	registered []string
	released   []string
}

func (f *fakeRegistrar) RegisterSelf(_ context.Context, ip string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, ip)
	return nil
}

func (f *fakeRegistrar) Release(_ context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, ip)
	return nil
}

// fakeRunner reports a fixed outcome, optionally blocking until released so
// tests can observe the busy window.
type fakeRunner struct {
	outcome Outcome
	block   chan struct{}
}

func (f *fakeRunner) Run(context.Context, Request) (*RunResult, error) {
	if f.block != nil {
		<-f.block
	}
	return &RunResult{Outcome: f.outcome, OutputPath: "output.tbl"}, nil
}

type fakeParser struct {
	hits []models.Hit
	err  error
}

func (f *fakeParser) Parse(string) ([]models.Hit, error) {
	return f.hits, f.err
}

func submitBody(t *testing.T, jobID uuid.UUID, database string) []byte {
	t.Helper()
	body, err := json.Marshal(delegate.SubmitRequest{
		JobID:    jobID,
		Sequence: "ACGTACGTACGT",
		Database: database,
	})
	require.NoError(t, err)
	return body
}

func postSubmit(router http.Handler, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submit-job", bytes.NewReader(body))
	router.ServeHTTP(rec, req)
	return rec
}

func TestWorker_SuccessfulChunkRun(t *testing.T) {
	rs := &fakeResultStore{}
	reg := &fakeRegistrar{}
	parser := &fakeParser{hits: []models.Hit{{TargetID: "hit-1"}}}
	w := New(rs, reg, &fakeRunner{outcome: OutcomeSuccess}, parser, "10.0.0.9", 8090)
	router := w.Router()

	jobID := uuid.New()
	rec := postSubmit(router, submitBody(t, jobID, "ena"))
	assert.Equal(t, http.StatusCreated, rec.Code)

	w.Wait()

	// The started call resolves the chunk id for the result insert, then
	// the terminal status lands and the parent job is recomputed.
	assert.Equal(t, []string{models.ChunkStatusStarted, models.ChunkStatusSuccess}, rs.chunkStatuses)
	assert.Len(t, rs.chunkHits, 1)
	assert.Equal(t, []uuid.UUID{jobID}, rs.recomputed)
	assert.Equal(t, []string{"10.0.0.9"}, reg.released)
}

func TestWorker_InfernalRunUsesInfernalStore(t *testing.T) {
	rs := &fakeResultStore{}
	reg := &fakeRegistrar{}
	parser := &fakeParser{hits: []models.Hit{{TargetID: "rfam-hit"}}}
	w := New(rs, reg, &fakeRunner{outcome: OutcomeSuccess}, parser, "10.0.0.9", 8090)

	// No database in the payload means a structural search.
	rec := postSubmit(w.Router(), submitBody(t, uuid.New(), ""))
	assert.Equal(t, http.StatusCreated, rec.Code)
	w.Wait()

	assert.Empty(t, rs.chunkStatuses)
	assert.Equal(t, []string{models.ChunkStatusStarted, models.ChunkStatusSuccess}, rs.infernalStatuses)
	assert.Len(t, rs.infernalHits, 1)
}

func TestWorker_TimeoutOutcome(t *testing.T) {
	rs := &fakeResultStore{}
	w := New(rs, &fakeRegistrar{}, &fakeRunner{outcome: OutcomeTimeout}, &fakeParser{}, "10.0.0.9", 8090)

	postSubmit(w.Router(), submitBody(t, uuid.New(), "ena"))
	w.Wait()

	assert.Equal(t, []string{models.ChunkStatusTimeout}, rs.chunkStatuses)
	assert.Empty(t, rs.chunkHits)
}

func TestWorker_ToolErrorOutcome(t *testing.T) {
	rs := &fakeResultStore{}
	w := New(rs, &fakeRegistrar{}, &fakeRunner{outcome: OutcomeError}, &fakeParser{}, "10.0.0.9", 8090)

	postSubmit(w.Router(), submitBody(t, uuid.New(), "ena"))
	w.Wait()

	assert.Equal(t, []string{models.ChunkStatusError}, rs.chunkStatuses)
}

func TestWorker_InsertFailureTurnsSuccessIntoError(t *testing.T) {
	rs := &fakeResultStore{insertErr: assert.AnError}
	parser := &fakeParser{hits: []models.Hit{{TargetID: "hit-1"}}}
	w := New(rs, &fakeRegistrar{}, &fakeRunner{outcome: OutcomeSuccess}, parser, "10.0.0.9", 8090)

	postSubmit(w.Router(), submitBody(t, uuid.New(), "ena"))
	w.Wait()

	require.NotEmpty(t, rs.chunkStatuses)
	assert.Equal(t, models.ChunkStatusError, rs.chunkStatuses[len(rs.chunkStatuses)-1])
}

func TestWorker_DuplicateCompletionDropsResults(t *testing.T) {
	// The unit already reached a terminal status through another
	// delegation; this run's hits must not be inserted on top.
	rs := &fakeResultStore{chunkState: models.ChunkStatusSuccess}
	parser := &fakeParser{hits: []models.Hit{{TargetID: "hit-1"}}}
	w := New(rs, &fakeRegistrar{}, &fakeRunner{outcome: OutcomeSuccess}, parser, "10.0.0.9", 8090)

	postSubmit(w.Router(), submitBody(t, uuid.New(), "ena"))
	w.Wait()

	assert.Empty(t, rs.chunkHits)
}

func TestWorker_DuplicateInfernalCompletionDropsResults(t *testing.T) {
	rs := &fakeResultStore{infernalState: models.ChunkStatusTimeout}
	parser := &fakeParser{hits: []models.Hit{{TargetID: "rfam-hit"}}}
	w := New(rs, &fakeRegistrar{}, &fakeRunner{outcome: OutcomeSuccess}, parser, "10.0.0.9", 8090)

	postSubmit(w.Router(), submitBody(t, uuid.New(), ""))
	w.Wait()

	assert.Empty(t, rs.infernalHits)
}

func TestWorker_RejectsSecondSubmitWhileBusy(t *testing.T) {
	block := make(chan struct{})
	w := New(&fakeResultStore{}, &fakeRegistrar{}, &fakeRunner{outcome: OutcomeSuccess, block: block},
		&fakeParser{}, "10.0.0.9", 8090)
	router := w.Router()

	rec := postSubmit(router, submitBody(t, uuid.New(), "ena"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postSubmit(router, submitBody(t, uuid.New(), "rfam"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(block)
	w.Wait()

	// Free again after the run completes.
	rec = postSubmit(router, submitBody(t, uuid.New(), "ena"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	w.Wait()
}

func TestWorker_RejectsInvalidPayload(t *testing.T) {
	w := New(&fakeResultStore{}, &fakeRegistrar{}, &fakeRunner{}, &fakeParser{}, "10.0.0.9", 8090)
	router := w.Router()

	rec := postSubmit(router, []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postSubmit(router, []byte(`{"sequence":"ACGT"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postSubmit(router, submitBody(t, uuid.Nil, "ena"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorker_StatusEndpointReflectsBusyState(t *testing.T) {
	block := make(chan struct{})
	w := New(&fakeResultStore{}, &fakeRegistrar{}, &fakeRunner{outcome: OutcomeSuccess, block: block},
		&fakeParser{}, "10.0.0.9", 8090)
	router := w.Router()

	status := func() string {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		var body struct {
			Data struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Data.Status
	}

	assert.Equal(t, models.ConsumerAvailable, status())

	postSubmit(router, submitBody(t, uuid.New(), "ena"))
	assert.Equal(t, models.ConsumerBusy, status())

	close(block)
	w.Wait()
	assert.Equal(t, models.ConsumerAvailable, status())
}

func TestWorker_DrainHonorsDeadline(t *testing.T) {
	block := make(chan struct{})
	w := New(&fakeResultStore{}, &fakeRegistrar{}, &fakeRunner{outcome: OutcomeSuccess, block: block},
		&fakeParser{}, "10.0.0.9", 8090)

	rec := postSubmit(w.Router(), submitBody(t, uuid.New(), "ena"))
	require.Equal(t, http.StatusCreated, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, w.Drain(ctx))

	close(block)
	assert.True(t, w.Drain(context.Background()))
}

func TestWorker_Register(t *testing.T) {
	reg := &fakeRegistrar{}
	w := New(&fakeResultStore{}, reg, &fakeRunner{}, &fakeParser{}, "10.0.0.9", 8090)

	require.NoError(t, w.Register(context.Background()))
	assert.Equal(t, []string{"10.0.0.9"}, reg.registered)
}
