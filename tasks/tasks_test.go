package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/config"
	"shorts-pipeline/failure"
	"shorts-pipeline/metrics"
	"shorts-pipeline/types"
	"shorts-pipeline/ytauth"
)

var good = types.ContentPayload{
	Title:               "Listen before you fix",
	Script:              "Tonight, just listen.",
	GenerationPrompt:    "A calm couple talking on a sofa",
	PlatformDescription: "#shorts",
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(time.Hour, zerolog.Nop())
	rec, err := r.Create(good)
	require.NoError(t, err)
	assert.Len(t, rec.TaskID, idLength)

	got, ok := r.Get(" " + rec.TaskID + " ")
	require.True(t, ok)
	assert.Equal(t, good, got.Payload)

	_, err = r.Claim(rec.TaskID)
	require.NoError(t, err)
	_, err = r.Claim(rec.TaskID)
	assert.True(t, failure.Is(err, failure.KindBusy))

	r.Release(rec.TaskID)
	_, err = r.Claim(rec.TaskID)
	require.NoError(t, err)

	r.Remove(rec.TaskID)
	_, err = r.Claim(rec.TaskID)
	assert.True(t, failure.Is(err, failure.KindUnknownTask))
	assert.Zero(t, r.Pending())
}

func TestRegistryRefusesErrorPayload(t *testing.T) {
	r := NewRegistry(time.Hour, zerolog.Nop())
	_, err := r.Create(types.ErrorPayload("quota"))
	assert.True(t, failure.Is(err, failure.KindValidation))
	assert.Zero(t, r.Pending())
}

func TestRegistryExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(24*time.Hour, zerolog.Nop())
	r.now = func() time.Time { return now }

	old, err := r.Create(good)
	require.NoError(t, err)
	running, err := r.Create(good)
	require.NoError(t, err)
	_, err = r.Claim(running.TaskID)
	require.NoError(t, err)

	now = now.Add(25 * time.Hour)
	_, ok := r.Get(old.TaskID)
	assert.False(t, ok)

	_, err = r.Create(good)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Pending(), "expired record swept, claimed record kept")
}

func TestRegistryRemintsCollidingIDs(t *testing.T) {
	r := NewRegistry(0, zerolog.Nop())
	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	r.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	first, err := r.Create(good)
	require.NoError(t, err)
	second, err := r.Create(good)
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaa", first.TaskID)
	assert.Equal(t, "bbbbbbbb", second.TaskID)
}

type fakeSource struct {
	payload types.ContentPayload
	err     error
}

func (f fakeSource) Generate(context.Context) (types.ContentPayload, error) { return f.payload, f.err }

type fakeRunner struct {
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
	block   chan struct{}
	err     error
	panics  bool
}

func (f *fakeRunner) Run(ctx context.Context, task types.TaskRecord) *types.PipelineResult {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.panics {
		panic("driver exploded")
	}
	if f.block != nil {
		<-f.block
	}
	return &types.PipelineResult{TaskID: task.TaskID, Title: task.Payload.Title, Err: f.err}
}

type fakeAuth struct{ status ytauth.Status }

func (f fakeAuth) Status(context.Context) ytauth.Status { return f.status }

type results struct {
	mu  sync.Mutex
	got []*types.PipelineResult
}

func (r *results) add(res *types.PipelineResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, res)
}

func (r *results) all() []*types.PipelineResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.PipelineResult(nil), r.got...)
}

var creds = config.Secrets{InVideoUsername: "me@example.com", InVideoPassword: "pw"}

func newCoordinator(runner Runner, cfg config.PipelineConfig, secrets config.Secrets, auth AuthStatus) *Coordinator {
	return NewCoordinator(NewRegistry(time.Hour, zerolog.Nop()), fakeSource{payload: good}, runner, auth,
		cfg, secrets, metrics.MustNew(prometheus.NewRegistry()), zerolog.Nop())
}

func TestRequestGeneration(t *testing.T) {
	c := newCoordinator(&fakeRunner{}, config.PipelineConfig{Workers: 1}, creds, nil)
	rec, err := c.RequestGeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Registry().Pending())
	assert.Equal(t, good.Title, rec.Payload.Title)

	c.source = fakeSource{payload: types.ErrorPayload("rate limited")}
	_, err = c.RequestGeneration(context.Background())
	assert.Error(t, err)

	c.source = fakeSource{err: errors.New("network down")}
	_, err = c.RequestGeneration(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, c.Registry().Pending())
}

func TestConfirmUnknownTaskDoesNoWork(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner, config.PipelineConfig{Workers: 1}, creds, nil)
	_, err := c.ConfirmAndCreate(context.Background(), "deadbeef", nil)
	assert.True(t, failure.Is(err, failure.KindUnknownTask))
	c.Wait()
	assert.Zero(t, runner.calls.Load())
}

func TestConfirmRequiresEditorCredentials(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner, config.PipelineConfig{Workers: 1}, config.Secrets{}, nil)
	rec, err := c.RequestGeneration(context.Background())
	require.NoError(t, err)

	_, err = c.ConfirmAndCreate(context.Background(), rec.TaskID, nil)
	require.Error(t, err)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.NotEmpty(t, fe.Hint)
	c.Wait()
	assert.Zero(t, runner.calls.Load())

	_, err = c.Registry().Claim(rec.TaskID)
	assert.NoError(t, err, "record released for a later confirm")
}

func TestConfirmDispatchesAndConsumes(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner, config.PipelineConfig{Workers: 1, UploadEnabled: true}, creds,
		fakeAuth{status: ytauth.Status{Authenticated: true}})
	rec, err := c.RequestGeneration(context.Background())
	require.NoError(t, err)

	var res results
	d, err := c.ConfirmAndCreate(context.Background(), rec.TaskID, res.add)
	require.NoError(t, err)
	assert.Equal(t, rec.TaskID, d.TaskID)
	assert.Empty(t, d.UploadAuthWarning)
	c.Wait()

	got := res.all()
	require.Len(t, got, 1)
	assert.True(t, got[0].Succeeded())
	assert.Zero(t, c.Registry().Pending())

	_, err = c.ConfirmAndCreate(context.Background(), rec.TaskID, res.add)
	assert.True(t, failure.Is(err, failure.KindUnknownTask), "a task runs once")
}

func TestConfirmWarnsWhenYouTubeUnauthorized(t *testing.T) {
	c := newCoordinator(&fakeRunner{}, config.PipelineConfig{Workers: 1, UploadEnabled: true}, creds,
		fakeAuth{status: ytauth.Status{Detail: "no token"}})
	rec, err := c.RequestGeneration(context.Background())
	require.NoError(t, err)
	d, err := c.ConfirmAndCreate(context.Background(), rec.TaskID, nil)
	require.NoError(t, err)
	assert.Contains(t, d.UploadAuthWarning, "no token")
	c.Wait()
}

func TestFailedTaskRetainedForRetry(t *testing.T) {
	runner := &fakeRunner{err: failure.StepTimeout("generate", "", context.DeadlineExceeded)}
	c := newCoordinator(runner, config.PipelineConfig{Workers: 1, RetainFailedTasks: true}, creds, nil)
	rec, err := c.RequestGeneration(context.Background())
	require.NoError(t, err)

	var res results
	_, err = c.ConfirmAndCreate(context.Background(), rec.TaskID, res.add)
	require.NoError(t, err)
	c.Wait()
	require.Len(t, res.all(), 1)
	assert.False(t, res.all()[0].Succeeded())

	_, err = c.ConfirmAndCreate(context.Background(), rec.TaskID, res.add)
	require.NoError(t, err)
	c.Wait()
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestBusyWhenAlreadyRunningOrPoolFull(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	c := newCoordinator(runner, config.PipelineConfig{Workers: 1}, creds, nil)
	first, err := c.RequestGeneration(context.Background())
	require.NoError(t, err)
	second, err := c.RequestGeneration(context.Background())
	require.NoError(t, err)

	_, err = c.ConfirmAndCreate(context.Background(), first.TaskID, nil)
	require.NoError(t, err)

	_, err = c.ConfirmAndCreate(context.Background(), first.TaskID, nil)
	assert.True(t, failure.Is(err, failure.KindBusy))
	_, err = c.ConfirmAndCreate(context.Background(), second.TaskID, nil)
	assert.True(t, failure.Is(err, failure.KindBusy))

	close(runner.block)
	c.Wait()
	_, ok := c.Registry().Get(second.TaskID)
	assert.True(t, ok, "rejected task stays pending")
}

func TestPipelinesRunOneAtATime(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	c := newCoordinator(runner, config.PipelineConfig{Workers: 2}, creds, nil)
	var res results
	for range 2 {
		rec, err := c.RequestGeneration(context.Background())
		require.NoError(t, err)
		_, err = c.ConfirmAndCreate(context.Background(), rec.TaskID, res.add)
		require.NoError(t, err)
	}
	time.Sleep(20 * time.Millisecond)
	close(runner.block)
	c.Wait()
	assert.Len(t, res.all(), 2)
	assert.Equal(t, int32(1), runner.maxSeen.Load())
}

func TestWorkerPanicReleasesClaim(t *testing.T) {
	c := newCoordinator(&fakeRunner{panics: true}, config.PipelineConfig{Workers: 1}, creds, nil)
	rec, err := c.RequestGeneration(context.Background())
	require.NoError(t, err)

	var res results
	_, err = c.ConfirmAndCreate(context.Background(), rec.TaskID, res.add)
	require.NoError(t, err)
	c.Wait()

	got := res.all()
	require.Len(t, got, 1)
	assert.Equal(t, string(failure.KindInternal), got[0].ErrorKind)
	_, err = c.Registry().Claim(rec.TaskID)
	assert.NoError(t, err)
}
