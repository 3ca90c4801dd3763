package cron

import "context"

// Job is one unit of scheduled work run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry runs jobs in registration order. Names are unique; nil jobs are
// skipped so optional jobs can be passed straight from the wiring code.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register adds job and reports whether it was accepted. A nil job or a name
// already taken is refused.
func (r *Registry) Register(job Job) bool {
	if job == nil {
		return false
	}
	if _, taken := r.names[job.Name()]; taken {
		return false
	}
	r.names[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
	return true
}

func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
