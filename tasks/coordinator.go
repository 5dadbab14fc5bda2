package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"shorts-pipeline/async"
	"shorts-pipeline/config"
	"shorts-pipeline/failure"
	"shorts-pipeline/metrics"
	"shorts-pipeline/types"
	"shorts-pipeline/ytauth"
)

// PayloadSource produces one AI payload
type PayloadSource interface {
	Generate(ctx context.Context) (types.ContentPayload, error)
}

// Runner executes one pipeline invocation
type Runner interface {
	Run(ctx context.Context, task types.TaskRecord) *types.PipelineResult
}

// AuthStatus reports the upload platform authorization
type AuthStatus interface {
	Status(ctx context.Context) ytauth.Status
}

// Dispatch acknowledges a task that was handed to a worker
type Dispatch struct {
	TaskID string
	Title  string
	// UploadAuthWarning is set when uploads are enabled but YouTube is not
	// authorized; the run still starts.
	UploadAuthWarning string
}

// Coordinator turns generation requests into task records and confirmed
// records into background pipeline runs.
type Coordinator struct {
	registry *Registry
	source   PayloadSource
	runner   Runner
	auth     AuthStatus
	cfg      config.PipelineConfig
	secrets  config.Secrets
	metrics  *metrics.Metrics
	group    errgroup.Group
	single   *semaphore.Weighted
	log      zerolog.Logger
}

// NewCoordinator wires the collaborators. auth and m may be nil.
func NewCoordinator(registry *Registry, source PayloadSource, runner Runner, auth AuthStatus,
	cfg config.PipelineConfig, secrets config.Secrets, m *metrics.Metrics, log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		registry: registry,
		source:   source,
		runner:   runner,
		auth:     auth,
		cfg:      cfg,
		secrets:  secrets,
		metrics:  m,
		single:   semaphore.NewWeighted(1),
		log:      log.With().Str("component", "coordinator").Logger(),
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	c.group.SetLimit(workers)
	return c
}

// RequestGeneration asks the AI collaborator for a payload and stores it.
// Nothing is stored when the payload is error-shaped.
func (c *Coordinator) RequestGeneration(ctx context.Context) (types.TaskRecord, error) {
	c.log.Info().Msg("🧠 requesting payload")
	payload, err := c.source.Generate(ctx)
	if err == nil {
		if reason, bad := payload.ErrorSignal(); bad {
			err = fmt.Errorf("generation returned an error payload: %s", reason)
		}
	}
	if err != nil {
		c.metrics.Generation(false)
		c.log.Error().Err(err).Msg("❌ payload generation failed")
		return types.TaskRecord{}, err
	}
	rec, err := c.registry.Create(payload)
	if err != nil {
		c.metrics.Generation(false)
		return types.TaskRecord{}, err
	}
	c.metrics.Generation(true)
	c.metrics.SetPending(c.registry.Pending())
	c.log.Info().Str("task_id", rec.TaskID).Msg("✅ payload ready")
	return rec, nil
}

// ConfirmAndCreate dispatches the pipeline for taskID and returns at once.
// onDone receives the terminal result from the worker goroutine. ctx scopes
// the run itself, so callers pass a long-lived context.
func (c *Coordinator) ConfirmAndCreate(ctx context.Context, taskID string, onDone func(*types.PipelineResult)) (*Dispatch, error) {
	rec, err := c.registry.Claim(taskID)
	if err != nil {
		return nil, err
	}
	log := c.log.With().Str("task_id", rec.TaskID).Logger()

	if !c.secrets.EditorCredentialsSet() {
		c.registry.Release(rec.TaskID)
		return nil, failure.Newf(failure.KindEnvironment, "InVideo credentials are not configured").
			WithHint("set INVIDEO_USERNAME and INVIDEO_PASSWORD, then confirm again")
	}

	d := &Dispatch{TaskID: rec.TaskID, Title: rec.Payload.Title}
	if c.cfg.UploadEnabled && c.auth != nil {
		if st := c.auth.Status(ctx); !st.Authenticated {
			d.UploadAuthWarning = "YouTube is not authorized; the upload step will fail until /youtube_auth succeeds"
			if st.Detail != "" {
				d.UploadAuthWarning += " (" + st.Detail + ")"
			}
		}
	}

	started := c.group.TryGo(func() error {
		c.work(ctx, rec, onDone, log)
		return nil
	})
	if !started {
		c.registry.Release(rec.TaskID)
		return nil, failure.Busy("all pipeline workers are busy, try %s again shortly", rec.TaskID)
	}
	log.Info().Msg("🚀 pipeline dispatched")
	return d, nil
}

func (c *Coordinator) work(ctx context.Context, rec types.TaskRecord, onDone func(*types.PipelineResult), log zerolog.Logger) {
	finished := false
	defer async.Recover(log, "pipeline-worker", func(err error) {
		if finished {
			return
		}
		c.registry.Release(rec.TaskID)
		if onDone != nil {
			now := time.Now().UTC()
			fe := failure.New(failure.KindInternal, err)
			onDone(&types.PipelineResult{
				TaskID: rec.TaskID, Title: rec.Payload.Title,
				Err: fe, ErrorKind: string(fe.Kind),
				StartedAt: now, CompletedAt: now,
			})
		}
	})

	if err := c.single.Acquire(ctx, 1); err != nil {
		c.registry.Release(rec.TaskID)
		finished = true
		if onDone != nil {
			fe := failure.Classify(err, failure.KindInternal, "queue", "")
			onDone(&types.PipelineResult{TaskID: rec.TaskID, Title: rec.Payload.Title, Err: fe, ErrorKind: string(fe.Kind)})
		}
		return
	}
	res := func() *types.PipelineResult {
		defer c.single.Release(1)
		return c.runner.Run(ctx, rec)
	}()

	if res.Err != nil && c.cfg.RetainFailedTasks {
		c.registry.Release(rec.TaskID)
		log.Info().Msg("failed task kept for retry")
	} else {
		c.registry.Remove(rec.TaskID)
	}
	c.metrics.SetPending(c.registry.Pending())
	finished = true
	if onDone != nil {
		onDone(res)
	}
}

// Wait blocks until every dispatched run has delivered its result
func (c *Coordinator) Wait() {
	_ = c.group.Wait()
}

// Registry exposes the pending records
func (c *Coordinator) Registry() *Registry { return c.registry }
