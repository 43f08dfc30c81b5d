package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/kennyklee/jimmy-rocks/api"
	"github.com/kennyklee/jimmy-rocks/domain"
	"github.com/kennyklee/jimmy-rocks/storage"
)

type store interface {
	domain.Store
	api.Pinger
}

func main() {
	logger := log.New()
	if envBool("DEBUG") {
		logger.SetLevel(log.DebugLevel)
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rc *redis.Client
	if conn := os.Getenv("REDIS_CONNECTION_STRING"); conn != "" {
		rc = redis.NewClient(parseRedisConn(conn))
		defer rc.Close()
	}
	prefix := envString("REDIS_KEY_PREFIX", "kanban")

	var st store
	switch backend := envString("STORE_BACKEND", "file"); backend {
	case "file":
		fs, err := storage.NewFileStore(envString("DATA_DIR", "./data"), logger)
		if err != nil {
			logger.Fatalf("storage: %v", err)
		}
		st = fs
	case "redis":
		if rc == nil {
			logger.Fatal("missing redis config")
		}
		st = storage.NewRedisStore(rc, prefix)
	default:
		logger.Fatalf("invalid STORE_BACKEND: %s", backend)
	}

	opts := []domain.Option{domain.WithLogger(logger)}
	var fwd *storage.Forwarder
	if connStr := os.Getenv("STORAGE_CONNECTION_STRING"); connStr != "" {
		sink, err := storage.NewAzureSink(connStr,
			envString("EVENTS_ARCHIVE_TABLE", "kanbanevents"),
			envString("NOTIFICATION_QUEUE", "kanban-notifications"))
		if err != nil {
			logger.Fatalf("azure sink: %v", err)
		}
		ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = sink.Ensure(ensureCtx)
		cancel()
		if err != nil {
			logger.Fatalf("azure provisioning: %v", err)
		}
		fwd = storage.NewForwarder(sink, storage.ForwarderConfig{
			Workers:        envInt("FORWARD_WORKERS", 4),
			Buffer:         envInt("FORWARD_BUFFER", 1024),
			Timeout:        envDur("FORWARD_TIMEOUT", 30*time.Second),
			HandoffTimeout: envDur("FORWARD_HANDOFF_TIMEOUT", 25*time.Millisecond),
		}, logger)
		opts = append(opts, domain.WithFanout(fwd))
	}
	svc := domain.NewBoardService(st, opts...)

	apiOpts := api.Options{
		Health:         st,
		StreamInterval: envDur("STREAM_INTERVAL", 5*time.Second),
	}
	if rc != nil {
		apiOpts.Deduper = api.NewRedisDeduper(rc, prefix, envDur("DEDUPER_TTL", 24*time.Hour))
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(api.Middleware(envString("CORS_ORIGIN", "*"))...)
	e.Use(echoprometheus.NewMiddleware("kanban"))
	e.GET("/internal/prometheus", echoprometheus.NewHandler())
	api.Register(e, svc, apiOpts, logger)

	listenAddr := ":" + envString("PORT", "3333")
	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()
	logger.Infof("kanban board listening on %s", listenAddr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
	if fwd != nil {
		fwd.Close()
		if n := fwd.Dropped(); n > 0 {
			logger.Warnf("forwarder dropped %d jobs", n)
		}
	}
}

// parseRedisConn accepts a redis:// URL or the Azure style "host:port,password=..,ssl=true".
func parseRedisConn(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: must be a positive integer", key)
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", key, v)
	}
	return d
}
