package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/meziane/drclone/internal/clone"
	"github.com/meziane/drclone/internal/command"
	"github.com/meziane/drclone/internal/logger"
)

// Reporter delivers structured outcome data to the operator. Both channels
// are best effort: a failed notification never fails the run.
type Reporter struct {
	Runner command.Runner
	Log    logger.Logger

	// Object is the server identity the report is about.
	Object    string
	Recipient string

	// NotifierPath is the local executable taking
	// (object, message, level, detailsJSON).
	NotifierPath string

	MonitorURL      string
	MonitorToken    string
	MonitorDuration string

	client *retryablehttp.Client
}

// New builds a Reporter with a retrying HTTP client for the monitoring API.
func New(runner command.Runner, log logger.Logger) *Reporter {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	return &Reporter{
		Runner: runner,
		Log:    log,
		client: client,
	}
}

// TriggerMaintenance opens a maintenance window on the monitoring system
// so the torn-down service does not page anyone. Fire and forget.
func (r *Reporter) TriggerMaintenance(ctx context.Context) {
	if r.MonitorURL == "" || r.MonitorToken == "" {
		return
	}

	url := fmt.Sprintf("%s/api/v1/sources/trigger-maintenance/%s/%s",
		r.MonitorURL, r.MonitorToken, r.MonitorDuration)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		r.Log.Warn("maintenance trigger request", "error", err.Error())
		return
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.Log.Warn("maintenance trigger failed", "error", err.Error())
		return
	}
	resp.Body.Close()
	r.Log.Info("maintenance window triggered", "duration", r.MonitorDuration)
}

// Notify invokes the local notifier executable. Errors are logged and
// swallowed; reporting must never take a run down with it.
func (r *Reporter) Notify(ctx context.Context, message string, level clone.Severity, details any) {
	if r.NotifierPath == "" {
		r.Log.Warn("notifier not configured, dropping report", "message", message)
		return
	}

	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}

	res, err := r.Runner.Run(ctx, r.NotifierPath,
		r.Object, message, string(level), string(payload))
	if err != nil || res.Failed() {
		r.Log.Warn("notifier invocation failed", "exit_code", res.ExitCode)
		return
	}
	r.Log.Info("operator notified", "recipient", r.Recipient, "level", string(level))
}

// Report emits the single operator report a terminal outcome gets.
func (r *Reporter) Report(ctx context.Context, outcome clone.Outcome, details any) {
	r.Log.Info("run finished",
		"outcome", outcome.String(),
		"severity", string(outcome.Severity()),
	)
	r.Notify(ctx, outcome.Message(), outcome.Severity(), details)
}
