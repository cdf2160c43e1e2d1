// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"encoding/json"
	"time"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/logger"
	"lead-funnel/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// ExecuteFunc is the Execute method every operation handler exposes.
type ExecuteFunc[In any, Out any] func(ctx context.Context, input *In) (*Out, error)

// Job adapts one engine operation to Zeebe: variables decode into In, the
// output completes the job, errors go through errors.ErrorHandler.
type Job[In any, Out any] struct {
	TaskType string
	Timeout  time.Duration
	Execute  ExecuteFunc[In, Out]

	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewJob[In any, Out any](taskType string, timeout time.Duration, exec ExecuteFunc[In, Out], log logger.Logger) *Job[In, Out] {
	l := log.WithFields(map[string]interface{}{"taskType": taskType})
	return &Job[In, Out]{
		TaskType:   taskType,
		Timeout:    timeout,
		Execute:    exec,
		errHandler: errors.NewErrorHandler(l),
		logger:     l,
	}
}

// Process decodes variables and runs the operation under the job timeout.
func (j *Job[In, Out]) Process(ctx context.Context, variables string) (*Out, error) {
	var input In
	if variables != "" {
		if err := json.Unmarshal([]byte(variables), &input); err != nil {
			return nil, errors.NewInvalidRequestError("parse job variables: " + err.Error())
		}
	}

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	return j.Execute(ctx, &input)
}

// Handle is the worker.JobHandler registered with the gateway.
func (j *Job[In, Out]) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(j.TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(j.TaskType).Dec()

	j.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx := context.Background()
	output, err := j.Process(ctx, job.Variables)
	metrics.WorkerJobDuration.WithLabelValues(j.TaskType).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(j.TaskType, string(errors.Normalize(err).Code)).Inc()
		j.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		j.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		j.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(j.TaskType).Inc()
	j.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

// Registration is one job type ready to be opened against the gateway.
type Registration struct {
	TaskType      string
	Handler       worker.JobHandler
	MaxJobsActive int
	Timeout       time.Duration
}

type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

func NewWorker(client zbc.Client, reg Registration, log logger.Logger) *CamundaWorker {
	timeout := reg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxActive := reg.MaxJobsActive
	if maxActive <= 0 {
		maxActive = 5
	}
	jobWorker := client.NewJobWorker().
		JobType(reg.TaskType).
		Handler(reg.Handler).
		MaxJobsActive(maxActive).
		Timeout(timeout).
		Open()

	w := &CamundaWorker{
		worker:   jobWorker,
		logger:   log,
		taskType: reg.TaskType,
	}
	w.logger.Info("worker started", map[string]interface{}{"taskType": w.taskType})
	return w
}

// Stop closes the job worker; the shared client is closed by its owner.
func (w *CamundaWorker) Stop() {
	w.logger.Info("stopping worker", map[string]interface{}{"taskType": w.taskType})
	w.worker.Close()
	w.worker.AwaitClose()
}
