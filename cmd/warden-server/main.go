package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/wardenlabs/warden/internal/api"
	"github.com/wardenlabs/warden/internal/audit"
	"github.com/wardenlabs/warden/internal/breaker"
	"github.com/wardenlabs/warden/internal/chread"
	"github.com/wardenlabs/warden/internal/engine"
	"github.com/wardenlabs/warden/internal/intent"
	"github.com/wardenlabs/warden/internal/oversight"
	"github.com/wardenlabs/warden/internal/policy"
	"github.com/wardenlabs/warden/internal/registry"
	"github.com/wardenlabs/warden/internal/safety"
	"github.com/wardenlabs/warden/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("WARDEN_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("WARDEN_HTTP_PORT", "8080")
	policyFile := os.Getenv("WARDEN_POLICY_FILE")
	defaultAllow := envOrDefaultBool("WARDEN_DEFAULT_ALLOW", true)
	rateLimit := envOrDefaultInt("WARDEN_RATE_LIMIT_PER_MIN", 60)
	rateBurst := envOrDefaultInt("WARDEN_RATE_BURST", 0)
	quotaActions := envOrDefaultInt("WARDEN_QUOTA_MAX_ACTIONS", 1000)
	quotaWindow := envOrDefaultInt("WARDEN_QUOTA_WINDOW_HOURS", 24)
	breakerFailures := envOrDefaultInt("WARDEN_BREAKER_FAILURE_THRESHOLD", 5)
	breakerSuccesses := envOrDefaultInt("WARDEN_BREAKER_SUCCESS_THRESHOLD", 2)
	breakerTimeoutS := envOrDefaultInt("WARDEN_BREAKER_TIMEOUT_S", 60)
	minJustification := envOrDefaultInt("WARDEN_MIN_JUSTIFICATION_LEN", 0)
	highRiskTools := splitList(os.Getenv("WARDEN_HIGH_RISK_TOOLS"))
	highRiskFuncs := splitList(os.Getenv("WARDEN_HIGH_RISK_FUNCTIONS"))
	dryRun := envOrDefaultBool("WARDEN_DRY_RUN", false)
	opaURL := os.Getenv("WARDEN_OPA_URL")
	opaPath := envOrDefault("WARDEN_OPA_POLICY_PATH", "warden/allow")
	auditLogPath := os.Getenv("WARDEN_AUDIT_LOG_PATH")
	auditWebhook := os.Getenv("WARDEN_AUDIT_WEBHOOK_URL")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	cacheTTL := envOrDefaultInt("WARDEN_AUTH_CACHE_TTL_S", 30)

	logger.Info("starting warden server",
		zap.String("http_port", httpPort),
		zap.String("policy_file", policyFile),
		zap.Bool("default_allow", defaultAllow),
		zap.Bool("dry_run", dryRun),
	)

	// Default policy: rules file, OPA, or plain default
	var defaultPolicy engine.Policy
	switch {
	case policyFile != "":
		rp, err := policy.LoadFile(policyFile)
		if err != nil {
			logger.Fatal("failed to load policy file", zap.String("path", policyFile), zap.Error(err))
		}
		defaultPolicy = rp
		logger.Info("policy file loaded", zap.String("path", policyFile))
	case opaURL != "":
		defaultPolicy = policy.NewRemotePolicy(opaURL, opaPath, 5*time.Second, defaultAllow)
		logger.Info("remote policy enabled", zap.String("url", opaURL), zap.String("path", opaPath))
	case defaultAllow:
		defaultPolicy = engine.AllowAll{}
	default:
		defaultPolicy = engine.DenyAll{}
	}

	// Gates
	killSwitch := oversight.NewKillSwitch()
	killSwitch.OnActivate(func(s oversight.KillSwitchStatus) {
		logger.Warn("kill switch activated",
			zap.String("activated_by", s.ActivatedBy),
			zap.String("reason", s.Reason),
		)
	})

	circuitBreaker := breaker.New(breaker.Config{
		FailureThreshold: breakerFailures,
		SuccessThreshold: breakerSuccesses,
		Timeout:          time.Duration(breakerTimeoutS) * time.Second,
	})
	limiter := safety.NewRateLimiter(rateLimit, rateBurst)
	quotas := safety.NewQuotaManager(safety.QuotaConfig{
		MaxActions:  quotaActions,
		WindowHours: quotaWindow,
	})

	pipeline := intent.NewPipeline()
	if minJustification > 0 {
		pipeline.Add(intent.NewJustificationValidator(minJustification))
	}

	approvals, err := oversight.NewApprovalWorkflow(oversight.ApprovalConfig{
		HighRiskTools:     highRiskTools,
		HighRiskFunctions: highRiskFuncs,
		OnRequest: func(req *oversight.ApprovalRequest) {
			logger.Info("approval requested",
				zap.String("request_id", req.ID),
				zap.String("agent_id", req.AgentID),
				zap.String("tool", req.ToolName),
				zap.String("function", req.FunctionName),
			)
		},
	})
	if err != nil {
		logger.Fatal("invalid high-risk function patterns", zap.Error(err))
	}

	// Auditors: zap always, JSONL/webhook/ClickHouse when configured
	auditors := []audit.Auditor{audit.NewLogAuditor(logger)}
	if auditLogPath != "" {
		auditors = append(auditors, audit.NewJSONLAuditor(auditLogPath, logger))
		logger.Info("jsonl auditor enabled", zap.String("path", auditLogPath))
	}
	if auditWebhook != "" {
		auditors = append(auditors, audit.NewHTTPAuditor(auditWebhook, nil, 5*time.Second, logger))
		logger.Info("webhook auditor enabled", zap.String("url", auditWebhook))
	}
	if clickhouseDSN != "" {
		chAuditor, err := audit.NewClickHouseAuditor(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse auditor connection failed", zap.Error(err))
		} else {
			auditors = append(auditors, chAuditor)
			defer chAuditor.Close()
			logger.Info("clickhouse auditor connected")
		}
	}

	// Registry and engine
	reg := registry.New()
	eng := engine.New(engine.Config{
		Policy:     defaultPolicy,
		Resolver:   reg,
		KillSwitch: killSwitch,
		Breaker:    circuitBreaker,
		Limiter:    limiter,
		Quotas:     quotas,
		Pipeline:   pipeline,
		Approvals:  approvals,
		Auditors:   auditors,
		Logger:     logger,
		DryRun:     dryRun,
	})

	// Postgres pool (required for HTTP API)
	var pgStore *store.Store
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgStore = store.NewStore(db)
		logger.Info("postgres connected")
	} else {
		logger.Fatal("POSTGRES_DSN is required")
	}

	// ClickHouse reader (for events/analytics HTTP endpoints)
	var chReader *chread.Reader
	if clickhouseDSN != "" {
		chReader, err = chread.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// HTTP API server
	deps := &api.Dependencies{
		Store:      pgStore,
		Engine:     eng,
		Registry:   reg,
		KillSwitch: killSwitch,
		Approvals:  approvals,
		Limiter:    limiter,
		Quotas:     quotas,
		Reader:     chReader,
		Logger:     logger,
		CacheTTL:   time.Duration(cacheTTL) * time.Second,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("warden server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
