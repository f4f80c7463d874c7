package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseAuditor writes decision entries to ClickHouse asynchronously.
// Log() is non-blocking: entries are buffered and batch-inserted in a
// background goroutine, and dropped with a warning when the buffer is
// full.
type ClickHouseAuditor struct {
	conn    driver.Conn
	buffer  chan Entry
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseAuditor opens a ClickHouse connection and starts the
// background flush loop.
func NewClickHouseAuditor(dsn string, logger *zap.Logger) (*ClickHouseAuditor, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// ParseDSN enables TLS when ?secure=true is present; enforce it here
	// so cloud deployments on TLS ports work without DSN tweaking.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	a := &ClickHouseAuditor{
		conn:    conn,
		buffer:  make(chan Entry, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go a.flushLoop()
	return a, nil
}

// Log queues an entry for async insertion. Never blocks the caller.
func (a *ClickHouseAuditor) Log(entry Entry) {
	select {
	case a.buffer <- entry:
	default:
		a.logger.Warn("clickhouse audit buffer full, dropping entry",
			zap.String("correlation_id", entry.CorrelationID),
		)
	}
}

// Close signals the flush loop to drain remaining entries, waits for it
// to finish (up to drainTimeout), and returns. Safe to call once.
func (a *ClickHouseAuditor) Close() {
	close(a.done)
	<-a.flushed
}

func (a *ClickHouseAuditor) flushLoop() {
	defer close(a.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	for {
		select {
		case entry := <-a.buffer:
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case entry := <-a.buffer:
					batch = append(batch, entry)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				a.flush(batch)
			}
			return
		}
	}
}

func (a *ClickHouseAuditor) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO decision_events (
			timestamp, agent_id, tool, function, arguments,
			allow, reason, duration_ms, correlation_id
		)
	`)
	if err != nil {
		a.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range entries {
		argsJSON, err := json.Marshal(e.Arguments)
		if err != nil {
			argsJSON = []byte("{}")
		}

		var allowUint8 uint8
		if e.Allow {
			allowUint8 = 1
		}

		if err := batch.Append(
			e.Timestamp,
			e.AgentID,
			e.Tool,
			e.Function,
			string(argsJSON),
			allowUint8,
			e.Reason,
			e.DurationMs,
			e.CorrelationID,
		); err != nil {
			a.logger.Error("clickhouse append entry failed",
				zap.String("correlation_id", e.CorrelationID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		a.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(entries)),
			zap.Error(err),
		)
	}
}
