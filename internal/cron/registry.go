package cron

import (
	"fmt"
	"strings"
)

// Registry holds the jobs of one cycle in run order. Job names are unique.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if r.lookup(name) != nil {
		return fmt.Errorf("job %q already registered", name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Only returns a registry restricted to the named jobs, keeping run order.
func (r *Registry) Only(names ...string) (*Registry, error) {
	subset := &Registry{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if r.lookup(name) == nil {
			return nil, fmt.Errorf("unknown job %q", name)
		}
	}
	for _, job := range r.jobs {
		for _, name := range names {
			if strings.TrimSpace(name) == job.Name() {
				subset.jobs = append(subset.jobs, job)
				break
			}
		}
	}
	return subset, nil
}

func (r *Registry) lookup(name string) Job {
	for _, job := range r.jobs {
		if job.Name() == name {
			return job
		}
	}
	return nil
}
