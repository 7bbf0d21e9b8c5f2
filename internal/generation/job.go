package generation

import "context"

// JobRequest describes one external generation run.
type JobRequest struct {
	RunID         string
	ComponentName string
	ParentNodeID  string
	Count         int
	Prompt        string
	Model         string
}

// JobResult is the terminal event of a job.
type JobResult struct {
	Output   string
	Err      error
	Canceled bool
}

// Job runs the external generator. Start returns once the job is running;
// done must be called exactly once when it ends. Cancel asks a running job to
// stop; its done callback still fires.
type Job interface {
	Start(ctx context.Context, req JobRequest, done func(JobResult)) error
	Cancel(runID string) error
}
