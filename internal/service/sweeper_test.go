package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadmetrics/countline/config"
	"github.com/roadmetrics/countline/internal/data"
	"github.com/roadmetrics/countline/internal/domain/model"
	"github.com/roadmetrics/countline/internal/testutil"
)

// fixedTime pins the sweeper clock so age math is deterministic.
type fixedTime struct{ t time.Time }

func (f fixedTime) Now() time.Time { return f.t }

// fakeSweeperRepo is a simple in-memory job store for sweeper tests.
type fakeSweeperRepo struct {
	rows map[string]*model.DetectionJob

	created []*model.DetectionJob
	deleted []string

	existsErr error
	createErr error
	listErr   error
	deleteErr error
}

func newFakeSweeperRepo() *fakeSweeperRepo {
	return &fakeSweeperRepo{rows: make(map[string]*model.DetectionJob)}
}

func (f *fakeSweeperRepo) Exists(_ context.Context, id string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeSweeperRepo) Create(_ context.Context, job *model.DetectionJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, job)
	f.rows[job.ID] = job
	return nil
}

func (f *fakeSweeperRepo) ListByStatusOlderThan(
	_ context.Context,
	status model.JobStatus,
	cutoff time.Time,
	limit int,
) ([]*model.DetectionJob, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*model.DetectionJob
	for _, job := range f.rows {
		if job.Status != status || !job.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, job)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSweeperRepo) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.rows[id]; !ok {
		return model.ErrJobNotFound
	}
	delete(f.rows, id)
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeMarkerStore is an in-memory progress marker registry.
type fakeMarkerStore struct {
	markers map[string]data.ProgressMarker
	cleared []string

	listErr  error
	getErr   error
	clearErr error
}

func newFakeMarkerStore() *fakeMarkerStore {
	return &fakeMarkerStore{markers: make(map[string]data.ProgressMarker)}
}

func (f *fakeMarkerStore) ListMarkers(_ context.Context) ([]data.ProgressMarker, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]data.ProgressMarker, 0, len(f.markers))
	for _, m := range f.markers {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMarkerStore) GetMarker(_ context.Context, jobID string) (*data.ProgressMarker, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	m, ok := f.markers[jobID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeMarkerStore) ClearMarker(_ context.Context, jobID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	delete(f.markers, jobID)
	f.cleared = append(f.cleared, jobID)
	return nil
}

// fakeRemoteStore is an in-memory remote object store.
type fakeRemoteStore struct {
	objects map[string]data.RemoteObject
	removed []string

	listErr      error
	removeErrFor map[string]error
}

func newFakeRemoteStore() *fakeRemoteStore {
	return &fakeRemoteStore{
		objects:      make(map[string]data.RemoteObject),
		removeErrFor: make(map[string]error),
	}
}

func (f *fakeRemoteStore) Upload(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeRemoteStore) PresignedGetURL(context.Context, string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeRemoteStore) Remove(_ context.Context, key string) error {
	if err := f.removeErrFor[key]; err != nil {
		return err
	}
	delete(f.objects, key)
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeRemoteStore) ListKeys(_ context.Context, prefix string) ([]data.RemoteObject, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []data.RemoteObject
	for key, obj := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj)
		}
	}
	return out, nil
}

// terminalRecorder captures published events.
type terminalRecorder struct {
	events []model.ProgressEvent
}

func (t *terminalRecorder) PublishJobEvent(_ context.Context, event model.ProgressEvent) error {
	t.events = append(t.events, event)
	return nil
}

func (t *terminalRecorder) PublishTerminalEvent(_ context.Context, event model.ProgressEvent) error {
	t.events = append(t.events, event)
	return nil
}

type sweeperHarness struct {
	repo    *fakeSweeperRepo
	markers *fakeMarkerStore
	store   *fakeRemoteStore
	events  *terminalRecorder
	now     time.Time
	svc     *SweeperService
}

func newSweeperHarness(t *testing.T, scratchRoot string) *sweeperHarness {
	t.Helper()

	h := &sweeperHarness{
		repo:    newFakeSweeperRepo(),
		markers: newFakeMarkerStore(),
		store:   newFakeRemoteStore(),
		events:  &terminalRecorder{},
		now:     time.Date(2025, 8, 14, 12, 0, 0, 0, time.UTC),
	}

	cfg := config.SweeperConfig{
		RecoveryInterval:  time.Hour,
		RetentionInterval: 24 * time.Hour,
		ProcessingTimeout: 3 * time.Hour,
		RetentionWindow:   30 * 24 * time.Hour,
		OrphanMinAge:      6 * time.Hour,
		BatchSize:         100,
	}
	scratch := config.PipelineConfig{ScratchRoot: scratchRoot}

	svc, err := NewSweeperService(SweeperServiceOptions{
		Repo:    h.repo,
		Markers: h.markers,
		Store:   h.store,
		Config:  cfg,
		Scratch: scratch,
		Events:  h.events,
		Time:    fixedTime{h.now},
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *sweeperHarness) addMarker(id string, age time.Duration) {
	h.markers.markers[id] = data.ProgressMarker{
		TrackingID: id,
		Stage:      model.StageProcessing,
		Progress:   40,
		Owner:      "camera-17",
		StartedAt:  h.now.Add(-age - time.Minute),
		UpdatedAt:  h.now.Add(-age),
	}
}

const (
	stuckJobID  = "11111111-2222-4333-8444-555555555555"
	freshJobID  = "aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee"
	leakedJobID = "99999999-8888-4777-8666-555555554444"
)

func TestSweeperService_FailStuckJobs(t *testing.T) {
	t.Parallel()
	h := newSweeperHarness(t, t.TempDir())

	// Silent past the processing timeout with no terminal row: force failed.
	h.addMarker(stuckJobID, 4*time.Hour)
	// Still reporting progress: leave alone.
	h.addMarker(freshJobID, 10*time.Minute)
	// Terminal row already landed, only the marker leaked: clear marker only.
	h.addMarker(leakedJobID, 4*time.Hour)
	h.repo.rows[leakedJobID] = testutil.NewCompletedJob().WithID(leakedJobID).Build()

	require.NoError(t, h.svc.RunRecovery(context.Background()))

	require.Len(t, h.repo.created, 1)
	created := h.repo.created[0]
	assert.Equal(t, stuckJobID, created.ID)
	assert.Equal(t, model.JobStatusFailed, created.Status)
	assert.Equal(t, "camera-17", created.Owner)
	assert.Equal(t, model.EncodeInputKey(stuckJobID), created.InputMedia.ObjectKey)
	require.NotNil(t, created.LastError)
	assert.Contains(t, *created.LastError, "processing timeout")
	assert.Contains(t, *created.LastError, "stage processing")
	require.NoError(t, created.Validate())

	assert.ElementsMatch(t, []string{stuckJobID, leakedJobID}, h.markers.cleared)
	_, freshKept := h.markers.markers[freshJobID]
	assert.True(t, freshKept, "a live marker must survive the sweep")

	require.Len(t, h.events.events, 1)
	event := h.events.events[0]
	assert.Equal(t, stuckJobID, event.TrackingID)
	assert.Equal(t, model.StageError, event.Stage)
	require.NotNil(t, event.Result)
	assert.Equal(t, model.JobStatusFailed, event.Result.Status)
}

func TestSweeperService_FailStuckJobs_SecondPassIsNoop(t *testing.T) {
	t.Parallel()
	h := newSweeperHarness(t, t.TempDir())
	h.addMarker(stuckJobID, 4*time.Hour)

	require.NoError(t, h.svc.RunRecovery(context.Background()))
	require.NoError(t, h.svc.RunRecovery(context.Background()))

	assert.Len(t, h.repo.created, 1)
	assert.Len(t, h.events.events, 1)
}

func TestSweeperService_FailStuckJobs_ItemErrorContinues(t *testing.T) {
	t.Parallel()
	h := newSweeperHarness(t, t.TempDir())

	h.addMarker(stuckJobID, 4*time.Hour)
	h.addMarker(leakedJobID, 5*time.Hour)
	h.repo.createErr = errors.New("insert failed")

	err := h.svc.RunRecovery(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert failed")

	// Both markers were attempted; neither job landed, so both markers stay
	// for the next sweep to retry.
	assert.Empty(t, h.repo.created)
	assert.Len(t, h.markers.markers, 2)
}

func TestSweeperService_ExpireCompletedJobs(t *testing.T) {
	t.Parallel()
	h := newSweeperHarness(t, t.TempDir())

	expiredID := stuckJobID
	recentID := freshJobID
	h.repo.rows[expiredID] = testutil.NewCompletedJob().
		WithID(expiredID).
		WithCreatedAt(h.now.Add(-40 * 24 * time.Hour)).
		Build()
	h.repo.rows[recentID] = testutil.NewCompletedJob().
		WithID(recentID).
		WithCreatedAt(h.now.Add(-time.Hour)).
		Build()

	require.NoError(t, h.svc.RunRetention(context.Background()))

	assert.ElementsMatch(t, []string{
		model.EncodeInputKey(expiredID),
		model.EncodeOutputKey(expiredID),
		model.EncodeResultsKey(expiredID),
	}, h.store.removed)
	assert.Equal(t, []string{expiredID}, h.repo.deleted)

	_, recentKept := h.repo.rows[recentID]
	assert.True(t, recentKept, "a job inside the retention window must survive")
}

func TestSweeperService_ExpireCompletedJobs_ArtifactFailureKeepsRow(t *testing.T) {
	t.Parallel()
	h := newSweeperHarness(t, t.TempDir())

	h.repo.rows[stuckJobID] = testutil.NewCompletedJob().
		WithID(stuckJobID).
		WithCreatedAt(h.now.Add(-40 * 24 * time.Hour)).
		Build()
	h.store.removeErrFor[model.EncodeOutputKey(stuckJobID)] = errors.New("storage unavailable")

	err := h.svc.RunRetention(context.Background())
	require.Error(t, err)

	// The row survives so the next sweep retries the artifact removal.
	_, kept := h.repo.rows[stuckJobID]
	assert.True(t, kept)
	assert.Empty(t, h.repo.deleted)
}

func TestSweeperService_RemoveOrphanScratchDirs(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	h := newSweeperHarness(t, root)

	old := h.now.Add(-12 * time.Hour)

	orphanDir := filepath.Join(root, stuckJobID)
	trackedDir := filepath.Join(root, freshJobID)
	recentDir := filepath.Join(root, leakedJobID)
	foreignDir := filepath.Join(root, "not-a-job-dir")
	for _, dir := range []string{orphanDir, trackedDir, recentDir, foreignDir} {
		require.NoError(t, os.MkdirAll(dir, 0o750))
	}
	require.NoError(t, os.Chtimes(orphanDir, old, old))
	require.NoError(t, os.Chtimes(trackedDir, old, old))
	require.NoError(t, os.Chtimes(foreignDir, old, old))

	// freshJobID still has a live marker; its scratch dir is not orphaned.
	h.addMarker(freshJobID, 10*time.Minute)

	require.NoError(t, h.svc.RunRetention(context.Background()))

	assert.NoDirExists(t, orphanDir)
	assert.DirExists(t, trackedDir, "a dir backed by a live marker must survive")
	assert.DirExists(t, recentDir, "a dir younger than the age floor must survive")
	assert.DirExists(t, foreignDir, "a non-job dir must never be touched")
}

func TestSweeperService_RemoveOrphanRemoteObjects(t *testing.T) {
	t.Parallel()
	h := newSweeperHarness(t, t.TempDir())

	old := h.now.Add(-12 * time.Hour)
	orphanKey := model.EncodeInputKey(stuckJobID)
	trackedKey := model.EncodeOutputKey(freshJobID)
	recentKey := model.EncodeInputKey(leakedJobID)
	foreignKey := model.ObjectKeyPrefix + "not/an/artifact.bin"

	h.store.objects[orphanKey] = data.RemoteObject{Key: orphanKey, LastModified: old}
	h.store.objects[trackedKey] = data.RemoteObject{Key: trackedKey, LastModified: old}
	h.store.objects[recentKey] = data.RemoteObject{Key: recentKey, LastModified: h.now.Add(-time.Hour)}
	h.store.objects[foreignKey] = data.RemoteObject{Key: foreignKey, LastModified: old}

	// freshJobID has a recent terminal row; its artifacts are not orphaned.
	h.repo.rows[freshJobID] = testutil.NewCompletedJob().
		WithID(freshJobID).
		WithCreatedAt(h.now.Add(-time.Hour)).
		Build()

	require.NoError(t, h.svc.RunRetention(context.Background()))

	assert.Equal(t, []string{orphanKey}, h.store.removed)
	assert.Contains(t, h.store.objects, trackedKey)
	assert.Contains(t, h.store.objects, recentKey)
	assert.Contains(t, h.store.objects, foreignKey)
}

func TestSweeperService_Run_StopsOnCancel(t *testing.T) {
	t.Parallel()
	h := newSweeperHarness(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.svc.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a graceful stop")
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop on context cancellation")
	}
}

func TestNewSweeperService_RequiredDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewSweeperService(SweeperServiceOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SweeperRepository is required")
}
