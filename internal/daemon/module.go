package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/chitchat/internal/api"
	"github.com/matheus3301/chitchat/internal/attachment"
	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/config"
	"github.com/matheus3301/chitchat/internal/fanout"
	"github.com/matheus3301/chitchat/internal/identity"
	"github.com/matheus3301/chitchat/internal/lock"
	"github.com/matheus3301/chitchat/internal/logging"
	"github.com/matheus3301/chitchat/internal/outbox"
	"github.com/matheus3301/chitchat/internal/session"
	"github.com/matheus3301/chitchat/internal/status"
	"github.com/matheus3301/chitchat/internal/store"
	"github.com/matheus3301/chitchat/internal/summarize"
	intsync "github.com/matheus3301/chitchat/internal/sync"
	"github.com/matheus3301/chitchat/internal/web"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load config.toml and .env files
	Logger      *zap.Logger    // optional; nil = rotating session log file
	Quiet       bool           // log to the file only
	Debug       bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideNotifier,
			provideStore,
			provideIdentity,
			provideManager,
			provideMessageStream,
			provideRoster,
			provideAttachmentStore,
			providePipeline,
			provideSummarizer,
			provideSessionService,
			provideChatService,
			provideHTTPServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	envPaths := session.EnvPaths(p.SessionName)
	if err := cfg.ApplyEnv(envPaths...); err != nil {
		return nil, err
	}
	if err := cfg.EnsureTokenSecret(envPaths[0]); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	level := zapcore.InfoLevel
	if p.Debug {
		level = zapcore.DebugLevel
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, logging.Options{
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Level:      level,
		Quiet:      p.Quiet,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), p.SessionName)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideNotifier(cfg *config.Config, b *bus.Bus, logger *zap.Logger) (fanout.Notifier, error) {
	if cfg.Fanout.NATSURL == "" {
		return fanout.NewLocal(b), nil
	}
	n, err := fanout.DialNATS(cfg.Fanout.NATSURL, cfg.Fanout.SubjectPrefix, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("change fan-out over nats", zap.String("url", cfg.Fanout.NATSURL))
	return n, nil
}

// provideStore depends on the lock so the store is opened by the process
// that owns the session. With storage.db_path several sessions share one
// room; they see each other's writes live only through nats fan-out.
func provideStore(p Params, cfg *config.Config, _ *lock.Lock, n fanout.Notifier, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	if cfg.Storage.DBPath != "" {
		dbPath = cfg.Storage.DBPath
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		if cfg.Fanout.NATSURL == "" {
			logger.Warn("shared store without nats fan-out; other daemons' writes show up on the next local change",
				zap.String("path", dbPath))
		}
	}
	db, err := store.Open(dbPath, store.WithNotifier(n), store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideIdentity(p Params, cfg *config.Config, b *bus.Bus, logger *zap.Logger) (*identity.Provider, error) {
	creds, err := identity.NewCredentialStore(session.CredentialsPath(p.SessionName), []byte(cfg.Auth.TokenSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	var fed *identity.Federated
	if cfg.Auth.OIDCIssuer != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		fed, err = identity.NewFederated(ctx, identity.FederatedConfig{
			Issuer:        cfg.Auth.OIDCIssuer,
			ClientID:      cfg.Auth.OIDCClientID,
			ClientSecret:  cfg.Auth.OIDCClientSecret,
			DeviceAuthURL: cfg.Auth.DeviceAuthURL,
		})
		if err != nil {
			// Phone sign-in still works without the issuer.
			logger.Warn("federated sign-in unavailable", zap.String("issuer", cfg.Auth.OIDCIssuer), zap.Error(err))
			fed = nil
		}
	}

	phone := identity.NewPhoneVerifier(identity.LogSender{Logger: logger.Named("sms")}, cfg.Auth.CodeTTL, cfg.Auth.MaxAttempts)
	guard := identity.NewGuard(cfg.Auth.ChallengeDifficulty, 0)
	return identity.NewProvider(fed, phone, guard, creds, b, logger.Named("identity"))
}

func provideManager(cfg *config.Config, provider *identity.Provider, db *store.DB, m *status.Machine, b *bus.Bus, logger *zap.Logger) *auth.Manager {
	return auth.NewManager(provider, db, m, b, logger.Named("session"),
		auth.WithCountryCode(cfg.Auth.DefaultCountryCode),
		auth.WithAdmins(cfg.Auth.Admins),
		auth.WithWidgetFactory(provider.NewWidget),
	)
}

func provideMessageStream(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.MessageStream {
	return intsync.NewMessageStream(db.Messages(), b, logger.Named("messages"))
}

func provideRoster(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Roster {
	return intsync.NewRoster(db.Profiles(), b, logger.Named("roster"))
}

func provideAttachmentStore(p Params, cfg *config.Config, logger *zap.Logger) (attachment.Store, error) {
	if cfg.Storage.Backend == "s3" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("attachments stored in s3", zap.String("bucket", cfg.Storage.S3Bucket))
		return attachment.NewS3(ctx, attachment.S3Config{
			Region:        cfg.Storage.S3Region,
			Endpoint:      cfg.Storage.S3Endpoint,
			Bucket:        cfg.Storage.S3Bucket,
			AccessKey:     cfg.Storage.S3AccessKey,
			SecretKey:     cfg.Storage.S3SecretKey,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
	}
	baseURL := cfg.Storage.PublicBaseURL
	if baseURL == "" && cfg.HTTP.Enabled {
		baseURL = "http://" + cfg.HTTP.Addr
	}
	return attachment.NewLocal(localRoot(p, cfg), baseURL)
}

func localRoot(p Params, cfg *config.Config) string {
	if cfg.Storage.LocalDir != "" {
		return cfg.Storage.LocalDir
	}
	return session.AttachmentsDir(p.SessionName)
}

func providePipeline(db *store.DB, s attachment.Store, m *auth.Manager, b *bus.Bus, logger *zap.Logger) *outbox.Pipeline {
	return outbox.NewPipeline(db, attachment.NewUploader(s), m, b, logger.Named("outbox"))
}

func provideSummarizer(cfg *config.Config, logger *zap.Logger) *summarize.Service {
	var gen summarize.Generator
	if cfg.Summarizer.APIKey != "" && cfg.Summarizer.Model != "" {
		g, err := summarize.NewGeminiGenerator(context.Background(), summarize.GeneratorConfig{
			BaseURL:    cfg.Summarizer.BaseURL,
			APIVersion: cfg.Summarizer.APIVersion,
			Model:      cfg.Summarizer.Model,
			APIKey:     cfg.Summarizer.APIKey,
			Timeout:    cfg.Summarizer.Timeout,
		})
		if err != nil {
			logger.Warn("summarizer disabled", zap.Error(err))
		} else {
			gen = g
		}
	}
	return summarize.NewService(gen, logger.Named("summarize"))
}

func provideSessionService(p Params, m *auth.Manager, b *bus.Bus) *api.SessionService {
	return api.NewSessionService(p.SessionName, m, b)
}

func provideChatService(m *auth.Manager, msgs *intsync.MessageStream, roster *intsync.Roster, pipe *outbox.Pipeline, sum *summarize.Service, b *bus.Bus) *api.ChatService {
	return api.NewChatService(m, msgs, roster, pipe, sum, b)
}

func provideHTTPServer(p Params, cfg *config.Config, sum *summarize.Service, logger *zap.Logger) *web.Server {
	var dir string
	if cfg.Storage.Backend != "s3" {
		dir = filepath.Join(localRoot(p, cfg), "attachments")
	}
	router := web.NewRouter(sum, dir, logger.Named("http"))
	return web.NewServer(cfg.HTTP.Addr, router, logger.Named("http"))
}

type lifecycleDeps struct {
	fx.In

	Config   *config.Config
	Server   *Server
	HTTP     *web.Server
	Lock     *lock.Lock
	DB       *store.DB
	Notifier fanout.Notifier
	Manager  *auth.Manager
	Messages *intsync.MessageStream
	Roster   *intsync.Roster
	Bus      *bus.Bus
	Logger   *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	follower := newSessionFollower(d.Bus, d.Manager, d.Messages, d.Roster, d.Logger)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Follow before subscribing so the first Authenticated transition is seen.
			follower.start()

			if err := d.Manager.Subscribe(); err != nil {
				follower.stop()
				return err
			}

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if d.Config.HTTP.Enabled {
				if err := d.HTTP.Start(); err != nil {
					d.Logger.Warn("http entry point unavailable", zap.Error(err))
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if d.Config.HTTP.Enabled {
				if err := d.HTTP.Shutdown(ctx); err != nil {
					d.Logger.Warn("error stopping http server", zap.Error(err))
				}
			}
			d.Server.Stop(ctx)
			follower.stop()
			d.Manager.Close()
			if c, ok := d.Notifier.(interface{ Close() error }); ok {
				if err := c.Close(); err != nil {
					d.Logger.Warn("error closing fan-out", zap.Error(err))
				}
			}
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped", zap.Uint64("bus_dropped", d.Bus.Dropped()))
			return nil
		},
	})
}
