// Package audit records every engine decision through pluggable
// auditors. Auditor failures are contained; they never abort the
// governed call.
package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry is one audited decision.
type Entry struct {
	Timestamp     time.Time      `json:"timestamp"`
	AgentID       string         `json:"agent_id"`
	Tool          string         `json:"tool"`
	Function      string         `json:"function"`
	Arguments     map[string]any `json:"arguments"`
	Allow         bool           `json:"allow"`
	Reason        string         `json:"reason"`
	DurationMs    float64        `json:"duration_ms"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// Auditor receives decision entries. Log must not block decision-making
// for long and must not panic its way out of the engine; the engine
// contains panics, but auditors should handle their own failures.
type Auditor interface {
	Log(entry Entry)
}

// LogAuditor writes entries as structured zap logs.
type LogAuditor struct {
	logger *zap.Logger
}

// NewLogAuditor creates an auditor over the given logger.
func NewLogAuditor(logger *zap.Logger) *LogAuditor {
	return &LogAuditor{logger: logger}
}

func (a *LogAuditor) Log(entry Entry) {
	a.logger.Info("decision",
		zap.Time("timestamp", entry.Timestamp),
		zap.String("agent_id", entry.AgentID),
		zap.String("tool", entry.Tool),
		zap.String("function", entry.Function),
		zap.Bool("allow", entry.Allow),
		zap.String("reason", entry.Reason),
		zap.Float64("duration_ms", entry.DurationMs),
		zap.String("correlation_id", entry.CorrelationID),
	)
}

// JSONLAuditor appends entries to a file in JSON Lines format.
type JSONLAuditor struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewJSONLAuditor creates an auditor appending to the given path.
func NewJSONLAuditor(path string, logger *zap.Logger) *JSONLAuditor {
	return &JSONLAuditor{path: path, logger: logger}
}

func (a *JSONLAuditor) Log(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		a.logger.Warn("audit entry marshal failed", zap.Error(err))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		a.logger.Warn("audit file open failed", zap.String("path", a.path), zap.Error(err))
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(data, '\n')); err != nil {
		a.logger.Warn("audit file write failed", zap.String("path", a.path), zap.Error(err))
	}
}

// HTTPAuditor posts entries to an HTTP endpoint, one JSON document per
// entry. Delivery failures are logged and dropped; audit delivery never
// fails the governed call.
type HTTPAuditor struct {
	url     string
	headers map[string]string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPAuditor creates an auditor posting to url with optional extra
// headers.
func NewHTTPAuditor(url string, headers map[string]string, timeout time.Duration, logger *zap.Logger) *HTTPAuditor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPAuditor{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (a *HTTPAuditor) Log(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		a.logger.Warn("audit entry marshal failed", zap.Error(err))
		return
	}

	req, err := http.NewRequest(http.MethodPost, a.url, bytes.NewReader(data))
	if err != nil {
		a.logger.Warn("audit request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("audit delivery failed", zap.String("url", a.url), zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Warn("audit endpoint rejected entry",
			zap.String("url", a.url),
			zap.Int("status", resp.StatusCode),
		)
	}
}
