package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"bid-review/api"
	"bid-review/db/clickhouse"
	"bid-review/db/memory"
	"bid-review/db/postgres"
	"bid-review/db/redis"
	"bid-review/decision/analysis"
	"bid-review/llm"
	"bid-review/pkg/platform"
	"bid-review/session"
)

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the bid review API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "API server port",
				EnvVars: []string{"BIDREVIEW_PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Usage:   "Comma-separated list of allowed CORS origins",
				EnvVars: []string{"BIDREVIEW_CORS_ORIGINS"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	ctx := c.Context
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("cors-origins") {
		origins := strings.Split(c.String("cors-origins"), ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.Server.CORSOrigins = origins
	}

	history, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	sessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	var ai analysis.FindingSource
	if client, err := llm.NewClient(cfg.AI); err != nil {
		log.Warn().Err(err).Msg("AI analysis disabled")
	} else {
		ai = client
	}

	api.Version = version
	server := api.NewServer(newAnalyzer(cfg, history), sessions, ai, serverConfig(cfg))
	return server.StartWithGracefulShutdown()
}

func serverConfig(cfg *platform.Config) *api.Config {
	sc := api.DefaultConfig()
	sc.Port = cfg.Server.Port
	sc.CORSOrigins = cfg.Server.CORSOrigins
	sc.MaxRequestSize = cfg.Server.MaxRequestSize
	sc.RequestTimeout = time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	sc.WriteTimeout = sc.RequestTimeout + 30*time.Second
	sc.ShutdownTimeout = time.Duration(cfg.Server.ShutdownSeconds) * time.Second
	sc.APIKey = cfg.Server.APIKey
	sc.CompareTolerance = cfg.Compare.Tolerance
	return sc
}

// =============================================================================
// STORES
// =============================================================================

// openHistory opens the configured analysis history backend.
func openHistory(ctx context.Context, cfg *platform.Config) (analysis.HistoryStore, error) {
	st := cfg.Storage
	switch st.History {
	case "clickhouse":
		store, err := clickhouse.NewStore(&clickhouse.Config{
			Addr:     st.ClickHouseAddr,
			Database: st.ClickHouseDatabase,
			Username: st.ClickHouseUsername,
			Password: st.ClickHousePassword,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case "postgres":
		return postgres.NewStore(ctx, postgres.Config{DSN: st.PostgresDSN})
	case "memory", "":
		return memory.NewHistoryStore(0), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", st.History)
	}
}

// openSessions opens the configured session backend.
func openSessions(ctx context.Context, cfg *platform.Config) (session.Store, error) {
	st := cfg.Storage
	ttl := time.Duration(st.SessionTTLSeconds) * time.Second

	switch st.Sessions {
	case "redis":
		rc := redis.DefaultConfig()
		rc.Addr = st.RedisAddr
		rc.Password = st.RedisPassword
		rc.DB = st.RedisDB
		rc.TTL = ttl
		return redis.NewSessionStore(ctx, rc)
	case "memory", "":
		store := memory.NewSessionStore(ttl)
		if ttl > 0 {
			go sweepSessions(ctx, store, ttl)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", st.Sessions)
	}
}

func sweepSessions(ctx context.Context, store *memory.SessionStore, ttl time.Duration) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				log.Debug().Int("expired", n).Msg("Swept idle sessions")
			}
		}
	}
}
