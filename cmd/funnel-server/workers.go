// cmd/funnel-server/workers.go
package main

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"lead-funnel/internal/common/camunda"
	"lead-funnel/internal/common/config"
	"lead-funnel/internal/common/logger"
	"lead-funnel/pkg/registry"

	createaffiliate "lead-funnel/internal/workers/affiliate/create-affiliate"
	applycommission "lead-funnel/internal/workers/attribution/apply-commission"
	createleadrecord "lead-funnel/internal/workers/intake/create-lead-record"
	validateleadintake "lead-funnel/internal/workers/intake/validate-lead-intake"
	transitionleadstatus "lead-funnel/internal/workers/lifecycle/transition-lead-status"
	computeleadstats "lead-funnel/internal/workers/reporting/compute-lead-stats"
)

const defaultJobTimeout = 10 * time.Second

// startWorkers opens one Zeebe job worker per enabled operation so BPMN
// processes can drive the engine alongside the HTTP API. The returned func
// stops them and closes the gateway client.
func startWorkers(cfg *config.Config, reg *registry.ActivityRegistry, eng *engine, zapLog *zap.Logger, log logger.Logger) func() {
	if !cfg.Camunda.Enabled {
		zapLog.Info("Zeebe workers disabled")
		return func() {}
	}

	var client *camunda.Client
	err := retryWithBackoff(func() error {
		var err error
		client, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Error("zeebe workers not started", zap.Error(err))
		return func() {}
	}
	zapLog.Info("Zeebe client connected successfully")

	timeout := func(taskType string) time.Duration {
		if wc, ok := cfg.Workers[taskType]; ok && wc.Timeout > 0 {
			return config.GetDuration(wc.Timeout)
		}
		if a, ok := reg.Find(taskType); ok {
			return a.TimeoutDuration(defaultJobTimeout)
		}
		return defaultJobTimeout
	}

	handlers := map[string]worker.JobHandler{}
	handlers[validateleadintake.TaskType] = camunda.NewJob(validateleadintake.TaskType, timeout(validateleadintake.TaskType), eng.validate.Execute, log).Handle
	handlers[createleadrecord.TaskType] = camunda.NewJob(createleadrecord.TaskType, timeout(createleadrecord.TaskType), eng.submit.Execute, log).Handle
	handlers[createaffiliate.TaskType] = camunda.NewJob(createaffiliate.TaskType, timeout(createaffiliate.TaskType), eng.signUp.Execute, log).Handle
	handlers[transitionleadstatus.TaskType] = camunda.NewJob(transitionleadstatus.TaskType, timeout(transitionleadstatus.TaskType), eng.transition.Execute, log).Handle
	handlers[applycommission.TaskType] = camunda.NewJob(applycommission.TaskType, timeout(applycommission.TaskType), eng.commission.Execute, log).Handle
	handlers[computeleadstats.TaskType] = camunda.NewJob(computeleadstats.TaskType, timeout(computeleadstats.TaskType), eng.stats.Execute, log).Handle

	var workers []*camunda.CamundaWorker
	for taskType, handler := range handlers {
		wc, ok := cfg.Workers[taskType]
		if !ok || !wc.Enabled {
			zapLog.Debug("worker not enabled", zap.String("taskType", taskType))
			continue
		}
		maxActive := wc.MaxJobsActive
		if maxActive <= 0 {
			maxActive = cfg.Camunda.MaxJobsActive
		}
		workers = append(workers, camunda.NewWorker(client.GetClient(), camunda.Registration{
			TaskType:      taskType,
			Handler:       handler,
			MaxJobsActive: maxActive,
			Timeout:       timeout(taskType),
		}, log))
	}
	zapLog.Info("Zeebe workers started", zap.Int("count", len(workers)))

	return func() {
		for _, w := range workers {
			w.Stop()
		}
		if err := client.Close(); err != nil {
			zapLog.Warn("zeebe client close", zap.Error(err))
		}
	}
}
