package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cowly/pkg/domain"
	"cowly/pkg/inference"
	"cowly/pkg/storage"
	"cowly/pkg/store"
)

// DiseasePredictor classifies a cow's disease state from clinical features.
type DiseasePredictor interface {
	PredictDisease(ctx context.Context, sample map[string]any) (string, error)
}

// MilkPredictor estimates daily milk yield in litres.
type MilkPredictor interface {
	PredictMilkYield(ctx context.Context, features map[string]any) (float64, error)
}

// Config holds runtime configuration for the core application. Any injected
// dependency wins over the settings used to build it.
type Config struct {
	StoreDriver   string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTLeeway   time.Duration
	SessionTTL  time.Duration

	DiseaseModelURL string
	MilkModelURL    string
	ModelTimeout    time.Duration
	Artifacts       storage.ObjectStore

	Documents  store.DocumentStore
	Identities store.Identities
	Sessions   store.SessionStore
	Disease    DiseasePredictor
	Milk       MilkPredictor
	Now        func() time.Time
}

// App is the core application service: accounts, herd records, summaries
// and predictions.
type App struct {
	docs       store.DocumentStore
	identities store.Identities
	sessions   store.SessionStore
	disease    DiseasePredictor
	milk       MilkPredictor
	now        func() time.Time
}

// New constructs the application, building any dependency not injected.
func New(cfg Config) (*App, error) {
	docs, identities := cfg.Documents, cfg.Identities
	if docs == nil {
		switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
		case "memory":
			docs = store.NewMemoryStore()
		case "", "postgres":
			if cfg.DatabaseURL == "" {
				return nil, fmt.Errorf("database URL required")
			}
			gormStore, err := store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
			docs = gormStore
			if identities == nil {
				identities = gormStore.Identities()
			}
		default:
			return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
		}
	}
	if identities == nil {
		identities = store.NewMemoryIdentities()
	}

	sessions := cfg.Sessions
	if sessions == nil {
		var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword, 2*cfg.SessionTTL)
		}
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessions = jwtStore
	}

	modelHTTP := &http.Client{Timeout: cfg.ModelTimeout}
	if cfg.ModelTimeout <= 0 {
		modelHTTP = nil
	}
	disease := cfg.Disease
	if disease == nil && strings.TrimSpace(cfg.DiseaseModelURL) != "" {
		if cfg.Artifacts == nil {
			return nil, fmt.Errorf("disease model needs preprocessing artifacts")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		artifacts, err := inference.LoadArtifacts(ctx, cfg.Artifacts)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("load disease artifacts: %w", err)
		}
		classifier, err := inference.NewDiseaseClassifier(cfg.DiseaseModelURL, artifacts, modelHTTP)
		if err != nil {
			return nil, fmt.Errorf("init disease classifier: %w", err)
		}
		disease = classifier
	}
	milk := cfg.Milk
	if milk == nil && strings.TrimSpace(cfg.MilkModelURL) != "" {
		regressor, err := inference.NewMilkYieldRegressor(cfg.MilkModelURL, modelHTTP)
		if err != nil {
			return nil, fmt.Errorf("init milk regressor: %w", err)
		}
		milk = regressor
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		docs:       docs,
		identities: identities,
		sessions:   sessions,
		disease:    disease,
		milk:       milk,
		now:        now,
	}, nil
}

// Authenticate resolves a bearer token to its user id.
func (a *App) Authenticate(token string) (string, error) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return "", ErrUnauthorized
	}
	return uid, nil
}

// UserRole reads the role stored in the user's details. ok is false when
// the user or role is absent.
func (a *App) UserRole(ctx context.Context, uid string) (domain.UserRole, bool, error) {
	raw, ok, err := a.docs.Get(ctx, store.DetailsPath(uid)+"/role")
	if err != nil || !ok {
		return "", false, err
	}
	role, isString := raw.(string)
	if !isString {
		return "", false, nil
	}
	return domain.UserRole(role), true, nil
}

func (a *App) timestamp() string {
	return a.now().UTC().Format("2006-01-02T15:04:05.000000") + "Z"
}
