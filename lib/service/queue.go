package service

import (
	"context"
	"errors"
	"sync"

	"github.com/micropay-ai/micropay.go/common"
)

var ErrQueueFull = errors.New("job queue is full")

type GenerationParams struct {
	Prompt    string
	NumImages int
	Size      string
}

// Job is the in-memory handle for one generation pipeline run. The
// status endpoint reads its state concurrently with the worker driving
// it, so state access goes through the mutex.
type Job struct {
	OrderID string
	Params  GenerationParams

	mu    sync.Mutex
	state common.OrderState
}

func (j *Job) State() common.OrderState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) SetState(state common.OrderState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = state
}

// JobQueue hands generation jobs to a fixed pool of workers. Admission
// is keyed by order id: an order can never have more than one live job,
// no matter how many status requests race to admit it.
type JobQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ch   chan *Job
}

func NewJobQueue(size int) *JobQueue {
	return &JobQueue{
		jobs: make(map[string]*Job),
		ch:   make(chan *Job, size),
	}
}

// Admit returns the live job for the order, creating and queueing one
// if none is tracked yet. The second return reports whether this call
// created the job.
func (q *JobQueue) Admit(orderID string, params GenerationParams) (*Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[orderID]; ok {
		return job, false, nil
	}
	job := &Job{
		OrderID: orderID,
		Params:  params,
		state:   common.OrderStateGenerating,
	}
	select {
	case q.ch <- job:
		q.jobs[orderID] = job
		return job, true, nil
	default:
		return nil, false, ErrQueueFull
	}
}

// Get returns the live job for an order, or nil.
func (q *JobQueue) Get(orderID string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[orderID]
}

// Forget drops a finished job. Safe because terminal orders are served
// from the database and never re-admitted.
func (q *JobQueue) Forget(orderID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, orderID)
}

func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Start spawns the worker pool. Workers run until the context is
// canceled.
func (q *JobQueue) Start(ctx context.Context, workers int, run func(ctx context.Context, job *Job)) {
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-q.ch:
					run(ctx, job)
				}
			}
		}()
	}
}
