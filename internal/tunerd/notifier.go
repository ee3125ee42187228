package tunerd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iso3dfd-st7/autotune/pkg/logger"
)

// NotificationPayload is the JSON body posted to a run's callback URL
type NotificationPayload struct {
	RunID           string    `json:"run_id"`
	Status          RunStatus `json:"status"`
	Method          string    `json:"method,omitempty"`
	CreatedAtUnixMs int64     `json:"created_at_unix_ms"`
	StartedAtUnixMs int64     `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64     `json:"ended_at_unix_ms,omitempty"`
	Error           string    `json:"error,omitempty"`
	Best            string    `json:"best,omitempty"`
	BestScore       float64   `json:"best_score"`
	Iterations      int       `json:"iterations"`
	ResultID        string    `json:"result_id,omitempty"`
	Timestamp       int64     `json:"timestamp"`
}

// Notifier posts terminal run states to client callbacks with retries
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		baseDelay:  1 * time.Second,
	}
}

// WithRetry overrides the retry count and the base backoff delay
func (n *Notifier) WithRetry(maxRetries int, baseDelay time.Duration) *Notifier {
	n.maxRetries = maxRetries
	n.baseDelay = baseDelay
	return n
}

// BuildPayload renders the notification body for a run record
func BuildPayload(rec *RunRecord) NotificationPayload {
	p := NotificationPayload{
		RunID:           rec.Run.ID,
		Status:          rec.Run.Status,
		Method:          rec.Run.Method,
		CreatedAtUnixMs: rec.Run.CreatedAtUnixMs,
		StartedAtUnixMs: rec.Run.StartedAtUnixMs,
		EndedAtUnixMs:   rec.Run.EndedAtUnixMs,
		Error:           rec.Run.Error,
		BestScore:       rec.Run.BestScore,
		Iterations:      rec.Run.Iteration,
		ResultID:        rec.Run.ResultID,
		Timestamp:       time.Now().UTC().UnixMilli(),
	}
	if rec.Result != nil {
		p.Best = rec.Result.Best.String()
	}
	return p
}

// Notify sends the notification in a goroutine and returns immediately.
// "{run_id}" in callbackURL is replaced by the run id.
func (n *Notifier) Notify(callbackURL, callbackSecret string, rec *RunRecord) {
	if callbackURL == "" {
		return
	}
	if rec == nil || rec.Run == nil {
		logger.Warn("cannot notify: invalid run record", "callback_url", callbackURL)
		return
	}

	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", rec.Run.ID)
	go n.send(finalURL, callbackSecret, BuildPayload(rec))
}

func (n *Notifier) send(callbackURL, callbackSecret string, payload NotificationPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload", "run_id", payload.RunID, "error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.baseDelay * time.Duration(1<<uint(attempt-1))
			logger.Debug("retrying notification", "run_id", payload.RunID, "attempt", attempt, "delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "autotune/1.0")
		if callbackSecret != "" {
			req.Header.Set("X-Autotune-Callback-Secret", callbackSecret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed", "run_id", payload.RunID, "attempt", attempt+1, "error", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent", "run_id", payload.RunID, "status", payload.Status)
			return
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status", "run_id", payload.RunID, "status_code", resp.StatusCode, "attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"run_id", payload.RunID,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}
