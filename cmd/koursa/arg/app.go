package arg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"koursa/client/internal/config"
	ficherepo "koursa/client/internal/fiche/repository"
	ficheservice "koursa/client/internal/fiche/service"
	"koursa/client/internal/gateway"
	identityrepo "koursa/client/internal/identity/repository"
	"koursa/client/internal/policy/engine"
	sessionservice "koursa/client/internal/session/service"
	"koursa/client/internal/storage"
	teachingrepo "koursa/client/internal/teaching/repository"
	"koursa/client/internal/telemetry"
	"koursa/client/internal/telemetry/loki"
	otelsetup "koursa/client/internal/telemetry/otel"
	"koursa/client/internal/telemetry/producer"
	userrepo "koursa/client/internal/user/repository"
	userservice "koursa/client/internal/user/service"
)

// app is the client wired from config: one store, one gateway and the services on top of them.
type app struct {
	cfg      *config.Config
	store    storage.Store
	api      *gateway.Client
	session  *sessionservice.Manager
	fiches   *ficheservice.WorkflowService
	teaching *teachingrepo.RemoteRepository
	users    *userservice.AdminService

	sinks   bool
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, cfg.OTelServiceName, cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	a.closers = append(a.closers, providers.Shutdown)
	events := telemetry.Fanout{}
	if cfg.OTLPEndpoint != "" {
		events = append(events, otelsetup.NewEventEmitter(providers.LoggerProvider))
		a.sinks = true
	}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.EventsKafkaTopic); kp != nil {
		events = append(events, kp)
		a.closers = append(a.closers, func(context.Context) error { return kp.Close() })
		a.sinks = true
	}

	if cfg.LokiURL != "" {
		lc, err := loki.New(cfg.LokiURL, cfg.Timeout())
		if err != nil {
			_ = a.close(ctx)
			return nil, err
		}
		events = append(events, lc)
		a.sinks = true
	}

	store, closeStore, err := newStore(cfg)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	a.store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	policy, err := newPolicy(ctx, cfg.PolicyFile)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	var emitter telemetry.EventEmitter
	if len(events) > 0 {
		emitter = events
	}
	a.api = gateway.New(cfg.APIBaseURL, cfg.Timeout(), store)
	identity := identityrepo.NewRemoteRepository(a.api)
	users := userrepo.NewRemoteRepository(a.api)
	a.session = sessionservice.NewManager(identity, users, store, emitter)
	a.fiches = ficheservice.NewWorkflowService(ficherepo.NewRemoteRepository(a.api), identity, a.session, policy, emitter)
	a.teaching = teachingrepo.NewRemoteRepository(a.api)
	a.users = userservice.NewAdminService(users, a.session, policy, emitter)
	a.session.Restore(ctx)
	return a, nil
}

// close drains pending events, then releases resources in reverse order of creation.
func (a *app) close(ctx context.Context) error {
	if a.sinks && !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		log.Printf("telemetry: some events were not delivered before exit")
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// authenticated returns an error unless a session exists, refreshing the access token first when it
// is about to expire.
func (a *app) authenticated(ctx context.Context) error {
	if !a.session.Snapshot().IsAuthenticated() {
		return errors.New("not logged in; run `koursa login` first")
	}
	err := a.session.EnsureFreshToken(ctx, a.cfg.RefreshSkew())
	if errors.Is(err, sessionservice.ErrNoRefreshToken) {
		return nil
	}
	return err
}

// newStore builds the session store selected by SESSION_STORE. The returned close func may be nil.
func newStore(cfg *config.Config) (storage.Store, func(context.Context) error, error) {
	switch cfg.SessionStore {
	case config.StoreMemory:
		return storage.NewMemoryStore(), nil, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return storage.NewRedisStore(client, cfg.RedisKeyPrefix), func(context.Context) error { return client.Close() }, nil
	default:
		path := cfg.SessionFile
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, nil, fmt.Errorf("session file: %w", err)
			}
			path = filepath.Join(home, ".koursa", "session.json")
		}
		store, err := storage.NewFileStore(path)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

// newPolicy compiles the Rego policy from path, or the built-in one when path is empty. A policy
// that fails to compile falls back to the built-in Go rules.
func newPolicy(ctx context.Context, path string) (engine.Evaluator, error) {
	module, err := engine.LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	opa, err := engine.NewOPAEvaluator(ctx, module)
	if err != nil {
		log.Printf("policy: %v, using built-in rules", err)
		return engine.RulesEvaluator{}, nil
	}
	return opa, nil
}
