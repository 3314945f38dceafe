package cron

import "context"

// Job is a unit of scheduled work run by the cron service under the
// cluster-wide lock.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the ordered set of jobs a cron cycle executes.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the given jobs, skipping nil entries.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make([]Job, 0, len(jobs))}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends a job; nil jobs are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
