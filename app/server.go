package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"

	"github.com/Edjavier-collab/Main2MI-sub000/app/config"
	"github.com/Edjavier-collab/Main2MI-sub000/app/llm"
	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/app/store"
	"github.com/Edjavier-collab/Main2MI-sub000/coach"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/kv"
)

// Billing is the subscription service behind the payment routes.
type Billing interface {
	CreateCheckout(ctx context.Context, userID, email string, plan models.Plan, baseURL string) (models.CheckoutSession, error)
	UpdateTierFromSession(ctx context.Context, sessionID string) (models.TierUpdate, error)
	GetSubscription(ctx context.Context, userID, email string) (models.SubscriptionDetails, error)
	Cancel(ctx context.Context, userID, email string, acceptOffer bool) (models.SubscriptionDetails, error)
	ApplyRetentionDiscount(ctx context.Context, userID, email string) (models.SubscriptionDetails, error)
	Restore(ctx context.Context, userID, email string) (models.SubscriptionDetails, error)
	UpgradeToAnnual(ctx context.Context, userID, email string) (models.SubscriptionDetails, error)
	CreatePortalSession(ctx context.Context, userID, email, returnURL string) (string, error)
	ParseEvent(payload []byte, signature string, allowUnverified bool) (stripe.Event, error)
	HandleEvent(ctx context.Context, ev stripe.Event) error
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Config *config.Config
	Store  store.Store
	// Devices holds anonymous sessions keyed by device id.
	Devices kv.Store
	LLM     llm.Provider
	// Billing is nil when Stripe is not configured.
	Billing Billing
	Mode    coach.Mode
	Logger  *slog.Logger
	Now     func() time.Time
}

// Server holds the state shared by every HTTP handler.
type Server struct {
	cfg     *config.Config
	store   store.Store
	devices kv.Store
	llm     llm.Provider
	billing Billing
	mode    coach.Mode
	logger  *slog.Logger
	now     func() time.Time
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Devices == nil {
		d.Devices = kv.NewMemory()
	}
	if d.LLM == nil {
		d.LLM = llm.NewMock()
	}
	if d.Config == nil {
		d.Config = &config.Config{}
	}
	return &Server{
		cfg:     d.Config,
		store:   d.Store,
		devices: d.Devices,
		llm:     d.LLM,
		billing: d.Billing,
		mode:    d.Mode,
		logger:  d.Logger,
		now:     d.Now,
	}
}

// Build opens the configured backends and returns the ready router. The
// caller closes the backends on shutdown.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gin.Engine, *Backends, error) {
	backends, err := OpenBackends(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	srv := NewServer(Deps{
		Config:  cfg,
		Store:   backends.Store,
		Devices: backends.Devices,
		LLM:     llm.New(cfg.Gemini, logger),
		Billing: NewBilling(cfg.Stripe, backends.Store, logger),
		Mode:    backends.Mode,
		Logger:  logger,
	})
	router, err := NewRouter(srv)
	if err != nil {
		_ = backends.Close()
		return nil, nil, err
	}
	return router, backends, nil
}
