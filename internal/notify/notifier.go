// Package notify delivers structured outcome events from the retraining
// pipeline. Every event is appended to a local JSONL log and, when a webhook
// URL is configured, forwarded by HTTP POST. Webhook delivery is best-effort:
// failures are logged, never raised to the caller.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/config"
)

// Required event names emitted by the orchestrating flow.
const (
	EventRetrainingSkipped = "retraining_skipped"
	EventDataNotReady      = "data_not_ready"
	EventTrainingFailed    = "training_failed"
	EventValidationFailed  = "validation_failed"
	EventModelPromoted     = "model_promoted"
	EventModelRollback     = "model_rollback"
)

// Event is one notification record.
type Event struct {
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier appends events to a log file and optionally posts them to a
// webhook. Safe for concurrent use.
type Notifier struct {
	logger     *zap.Logger
	logPath    string
	webhookURL string
	client     *http.Client

	mu sync.Mutex
}

// New builds a Notifier from the notify configuration.
func New(cfg config.NotifyConfig, logger *zap.Logger) *Notifier {
	timeout := cfg.WebhookTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		logger:     logger,
		logPath:    cfg.LogPath,
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// Emit records the event. Log-file or webhook failures are logged and
// swallowed so that a broken sink never blocks a pipeline decision.
func (n *Notifier) Emit(event string, payload map[string]any) {
	entry := Event{Event: event, Payload: payload, Timestamp: time.Now().UTC()}

	if err := n.appendLog(entry); err != nil {
		n.logger.Error("notification_log_failed", zap.String("event", event), zap.Error(err))
	}
	n.logger.Info("notification_emitted",
		zap.String("event", event), zap.Any("payload", payload))
	n.postWebhook(entry)
}

func (n *Notifier) appendLog(entry Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if dir := filepath.Dir(n.logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(n.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

func (n *Notifier) postWebhook(entry Event) {
	if n.webhookURL == "" {
		return
	}
	body, err := json.Marshal(entry)
	if err != nil {
		n.logger.Error("webhook_marshal_failed", zap.Error(err))
		return
	}
	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook_post_failed", zap.String("event", entry.Event), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		n.logger.Warn("webhook_post_rejected",
			zap.String("event", entry.Event), zap.Int("status", resp.StatusCode))
	}
}
