// Package app wires configuration into the services shared by the server
// and worker processes.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-core/internal/config"
	"github.com/ignite/outreach-core/internal/delivery"
	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/distlock"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/repository/memory"
	"github.com/ignite/outreach-core/internal/repository/postgres"
	"github.com/ignite/outreach-core/internal/service/escalation"
	"github.com/ignite/outreach-core/internal/service/gate"
	"github.com/ignite/outreach-core/internal/service/persona"
	"github.com/ignite/outreach-core/internal/service/suppression"
	"github.com/ignite/outreach-core/internal/templating"
)

// ContactRepository is everything the services need from contact storage.
type ContactRepository interface {
	gate.Repository
	suppression.Repository
	UpsertContact(ctx context.Context, c *domain.Contact) error
}

// App holds the wired services.
type App struct {
	Config *config.Config
	DB     *sql.DB       // nil with the in-memory store
	Redis  *redis.Client // nil when locks fall back to Postgres

	Contacts  ContactRepository
	States    escalation.StateRepository
	Gate      *gate.Service
	Signals   *suppression.Service
	Router    *persona.Router
	Sequencer *escalation.Sequencer
	Transport *delivery.Mux
	Locks     distlock.Factory
}

// New connects to the configured backends and wires the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	log := logger.New("app")

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		a.DB = db
		a.Contacts = postgres.NewContactRepo(db)
		a.States = postgres.NewEscalationRepo(db)
	} else {
		log.Warn("database url not set, using in-memory store")
		store := memory.NewStore()
		a.Contacts = store
		a.States = store
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.Redis = redis.NewClient(opts)
	}
	a.Locks = distlock.NewFactory(a.Redis, a.DB, cfg.Scheduler.LockTTL())

	transport, err := newTransport(ctx, cfg, a.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Transport = transport

	reg, err := persona.NewRegistry(cfg.Personas)
	if err != nil {
		a.Close()
		return nil, err
	}
	engine := templating.NewEngine()
	a.Router = persona.NewRouter(reg, engine)

	catalog, err := cfg.Catalog()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Gate = gate.NewService(a.Contacts).WithConcurrency(cfg.Gate.BatchConcurrency)
	a.Signals = suppression.NewService(a.Contacts)
	a.Sequencer, err = escalation.NewSequencer(escalation.Deps{
		States:    a.States,
		Gate:      a.Gate,
		Router:    a.Router,
		Renderer:  engine,
		Transport: a.Transport,
		Catalog:   catalog,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newTransport registers a sender per channel. Channels without a
// configured provider use the dry-run sender. With Redis available each
// channel is wrapped in its configured rate limit.
func newTransport(ctx context.Context, cfg *config.Config, rdb *redis.Client) (*delivery.Mux, error) {
	dry := delivery.NewDryRunSender()
	senders := map[domain.Channel]delivery.Sender{
		domain.ChannelSMS:   dry,
		domain.ChannelVoice: dry,
		domain.ChannelEmail: dry,
	}

	if cfg.SES.Enabled {
		ses, err := delivery.NewSESTransportFromConfig(ctx, delivery.SESConfig{
			AccessKey:        cfg.SES.AccessKey,
			SecretKey:        cfg.SES.SecretKey,
			Region:           cfg.SES.Region,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})
		if err != nil {
			return nil, err
		}
		senders[domain.ChannelEmail] = ses
	}
	if cfg.SMSProvider.Enabled {
		if cfg.SMSProvider.BaseURL == "" {
			return nil, fmt.Errorf("sms_provider.base_url is required when enabled")
		}
		provider := delivery.NewHTTPTransport(delivery.HTTPConfig{
			BaseURL:    cfg.SMSProvider.BaseURL,
			APIKey:     cfg.SMSProvider.APIKey,
			MaxRetries: cfg.SMSProvider.MaxRetries,
			Timeout:    cfg.SMSProvider.Timeout(),
		}, nil)
		senders[domain.ChannelSMS] = provider
		senders[domain.ChannelVoice] = provider
	}

	var limiter *delivery.RateLimiter
	if rdb != nil {
		limiter = delivery.NewRateLimiter(rdb)
	}
	mux := delivery.NewMux()
	for ch, s := range senders {
		l := cfg.RateLimits.For(ch)
		mux.Handle(ch, delivery.NewRateLimitedSender(s, limiter, delivery.RateLimit{
			PerSecond: l.PerSecond,
			PerMinute: l.PerMinute,
			PerDay:    l.PerDay,
		}))
	}
	return mux, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
