// Package tasks owns pending payloads and dispatches confirmed ones to the
// pipeline.
package tasks

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shorts-pipeline/failure"
	"shorts-pipeline/types"
)

const idLength = 8

type entry struct {
	rec     types.TaskRecord
	claimed bool
}

// Registry holds pending task records. A record is created once, claimed by
// at most one dispatch and removed when its run ends.
type Registry struct {
	mu      sync.Mutex
	records map[string]*entry
	ttl     time.Duration
	now     func() time.Time
	newID   func() string
	log     zerolog.Logger
}

// NewRegistry keeps unclaimed records for ttl; zero keeps them forever.
func NewRegistry(ttl time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		records: map[string]*entry{},
		ttl:     ttl,
		now:     time.Now,
		newID:   func() string { return uuid.NewString()[:idLength] },
		log:     log.With().Str("component", "tasks").Logger(),
	}
}

// Create stores payload under a fresh id. Error-shaped payloads are refused.
func (r *Registry) Create(payload types.ContentPayload) (types.TaskRecord, error) {
	if reason, bad := payload.ErrorSignal(); bad {
		return types.TaskRecord{}, failure.Newf(failure.KindValidation, "payload not usable: %s", reason)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expireLocked()

	id := r.newID()
	for r.records[id] != nil {
		id = r.newID()
	}
	rec := types.TaskRecord{TaskID: id, Payload: payload, CreatedAt: r.now().UTC()}
	r.records[id] = &entry{rec: rec}
	r.log.Info().Str("task_id", id).Str("title", payload.Title).Msg("task stored")
	return rec, nil
}

// Get returns the record for id
func (r *Registry) Get(id string) (types.TaskRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.records[normalize(id)]
	if !ok || r.expired(e) {
		return types.TaskRecord{}, false
	}
	return e.rec, true
}

// Claim marks id as running. Unknown or expired ids are UnknownTask; an
// already claimed id is Busy.
func (r *Registry) Claim(id string) (types.TaskRecord, error) {
	id = normalize(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.records[id]
	if !ok || r.expired(e) {
		delete(r.records, id)
		return types.TaskRecord{}, failure.UnknownTask(id)
	}
	if e.claimed {
		return types.TaskRecord{}, failure.Busy("task %s is already running", id)
	}
	e.claimed = true
	return e.rec, nil
}

// Release returns a claimed record to the pending set
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.records[normalize(id)]; ok {
		e.claimed = false
	}
}

// Remove forgets id
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, normalize(id))
}

// Pending counts records, claimed ones included
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// claimed records never expire under a running pipeline
func (r *Registry) expired(e *entry) bool {
	return r.ttl > 0 && !e.claimed && r.now().Sub(e.rec.CreatedAt) > r.ttl
}

func (r *Registry) expireLocked() {
	for id, e := range r.records {
		if r.expired(e) {
			delete(r.records, id)
			r.log.Debug().Str("task_id", id).Msg("task expired")
		}
	}
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
