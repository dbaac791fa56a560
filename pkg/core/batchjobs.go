package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultJobBatchSize is the chunk size of BatchStart
const DefaultJobBatchSize = 10

// JobStatus is the lifecycle state of a background job
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// BatchJob is a background embedding job. Jobs live in memory only.
type BatchJob struct {
	ID          string     `json:"id"`
	EntityType  string     `json:"entityType"`
	Status      JobStatus  `json:"status"`
	BatchSize   int        `json:"batchSize"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Errors      int        `json:"errors"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// JobTable tracks batch jobs, possibly across several stores
type JobTable struct {
	mu   sync.Mutex
	jobs map[string]*BatchJob
}

// NewJobTable creates an empty table
func NewJobTable() *JobTable {
	return &JobTable{jobs: make(map[string]*BatchJob)}
}

func (t *JobTable) add(job *BatchJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[job.ID] = job
}

func (t *JobTable) update(id string, fn func(*BatchJob)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[id]; ok {
		fn(job)
	}
}

// Get returns a copy of a job
func (t *JobTable) Get(id string) (BatchJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return BatchJob{}, false
	}
	return *job, true
}

// Reset forgets every job
func (t *JobTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs = make(map[string]*BatchJob)
}

// BatchStart embeds every document of a type in the background, batchSize
// documents at a time, and returns the job id immediately
func (s *SQLiteStore) BatchStart(ctx context.Context, typ string, batchSize int) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", wrapError("batch start", err)
	}
	if typ == "" {
		return "", wrapError("batch start", invalidf("type is required"))
	}
	if batchSize <= 0 {
		batchSize = DefaultJobBatchSize
	}

	job := &BatchJob{
		ID:         uuid.NewString(),
		EntityType: typ,
		Status:     JobPending,
		BatchSize:  batchSize,
		CreatedAt:  s.now().UTC(),
	}
	s.jobs.add(job)

	started := s.spawn(func() {
		s.runBatchJob(context.WithoutCancel(ctx), job.ID, typ, batchSize)
	})
	if !started {
		s.jobs.update(job.ID, func(j *BatchJob) {
			j.Status = JobFailed
			j.Error = ErrStoreClosed.Error()
		})
		return "", wrapError("batch start", ErrStoreClosed)
	}

	s.logger.Info("batch job started", "job", job.ID, "type", typ, "batchSize", batchSize)
	return job.ID, nil
}

func (s *SQLiteStore) runBatchJob(ctx context.Context, jobID, typ string, batchSize int) {
	finish := func(status JobStatus, err error) {
		done := s.now().UTC()
		s.jobs.update(jobID, func(j *BatchJob) {
			j.Status = status
			j.CompletedAt = &done
			if err != nil {
				j.Error = err.Error()
			}
		})
		s.logger.Info("batch job finished", "job", jobID, "status", status, "error", err)
	}

	s.jobs.update(jobID, func(j *BatchJob) { j.Status = JobProcessing })

	docs, err := s.List(ctx, ListOptions{Type: typ})
	if err != nil {
		finish(JobFailed, err)
		return
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	s.jobs.update(jobID, func(j *BatchJob) { j.Total = len(ids) })

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		res, err := s.BatchEmbed(ctx, typ, ids[start:end], false)
		if err != nil {
			finish(JobFailed, fmt.Errorf("chunk %d-%d: %w", start, end, err))
			return
		}
		s.jobs.update(jobID, func(j *BatchJob) {
			j.Processed += res.Processed + res.Skipped
			j.Errors += res.Errors
		})
	}

	finish(JobCompleted, nil)
}

// BatchStatus returns the state of a batch job
func (s *SQLiteStore) BatchStatus(id string) (*BatchJob, error) {
	job, ok := s.jobs.Get(id)
	if !ok {
		return nil, wrapError("batch status", fmt.Errorf("job %s: %w", id, ErrNotFound))
	}
	return &job, nil
}
