package schedule

import "context"

// Job is a named periodic task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on a recurring spec until its context ends.
type Scheduler interface {
	Register(spec string, job Job) error
	Run(ctx context.Context) error
}
