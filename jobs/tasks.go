package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAlertDispatch is the task type for forwarding operational alerts.
	TaskAlertDispatch = "alerts:dispatch"
	// TaskRetentionSweep is the task type for pruning aged operational rows.
	TaskRetentionSweep = "retention:sweep"
)

// AlertDispatchPayload carries one alert to the notification worker.
type AlertDispatchPayload struct {
	Kind     string         `json:"kind"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// NewAlertDispatchTask constructs an Asynq task for an alert.
func NewAlertDispatchTask(payload AlertDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertDispatch, data, asynq.Queue(QueueDefault)), nil
}

// AlertDispatchJob processes TaskAlertDispatch tasks. Delivery to the actual
// notification channel (mail, chat) is owned by downstream collaborators; the
// worker's contract is to surface every alert in the operational log exactly
// once.
type AlertDispatchJob struct {
	logger *slog.Logger
}

// NewAlertDispatchJob constructs the handler.
func NewAlertDispatchJob(logger *slog.Logger) *AlertDispatchJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertDispatchJob{logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *AlertDispatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AlertDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	level := slog.LevelWarn
	if payload.Severity == "critical" {
		level = slog.LevelError
	}
	j.logger.Log(ctx, level, "operational alert",
		slog.String("kind", payload.Kind),
		slog.String("severity", payload.Severity),
		slog.String("message", payload.Message),
		slog.Time("at", payload.At))
	return nil
}
