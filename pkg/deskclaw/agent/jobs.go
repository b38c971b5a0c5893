package agent

import (
	"context"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/dispatch"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/scheduler"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/tasks"
)

// JobHandler returns a scheduler handler that runs a job's command through
// the pipeline. The scheduler announces the immediate reply; background
// results of announcing jobs go through announce as they finish.
func (a *Agent) JobHandler(announce scheduler.AnnounceHandler) scheduler.JobHandler {
	return func(ctx context.Context, job *scheduler.Job) (string, error) {
		var sink tasks.Sink
		if job.Announce && job.Channel != "" && job.ChatID != "" && announce != nil {
			sink = func(text string) {
				if err := announce(job.Channel, job.ChatID, text); err != nil {
					a.logger.Warn("job result not announced", "job", job.ID, "error", err)
				}
			}
		}
		return a.HandleMessage(dispatch.WithSource(ctx, "scheduler"), job.Command, sink), nil
	}
}
