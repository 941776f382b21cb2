package coach

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/kv"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/progress"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/retry"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/router"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/sessions"
)

// State is a snapshot of everything the app renders from.
type State struct {
	Identity        models.Identity
	AuthLoading     bool
	Tier            models.Tier
	TierSource      TierSource
	Sessions        []models.Session
	SessionsLoading bool
	// Remaining is nil for premium users.
	Remaining         *int
	View              router.View
	SignUpPrompt      bool
	Patient           *models.PatientProfile
	CoachingSummary   *models.CoachingSummary
	GeneratingSummary bool
	LoggingOut        bool
	ReviewDue         bool
	Orphans           int
	Notice            string
	// Progress is nil until sessions have loaded at least once.
	Progress  *progress.Progress
	NewBadges []progress.Badge
}

type Options struct {
	Backend    Backend
	Billing    Billing
	Summarizer Summarizer
	Auth       Authenticator
	Device     kv.Store
	Mode       Mode
	InitialURL string
	Logger     *slog.Logger
	Now        func() time.Time
	Sleep      retry.Sleeper
	Rand       *rand.Rand
}

type Coach struct {
	mu    sync.Mutex
	state State

	store    *sessions.Store
	quota    *QuotaCounter
	access   *Access
	tiers    *TierResolver
	router   *router.Router
	review   *ReviewPrompt
	progress *progress.Tracker
	summary  Summarizer
	auth     Authenticator
	rng      *rand.Rand
	now      func() time.Time
	logger   *slog.Logger
	logoutMu sync.Mutex
}

func New(opts Options) *Coach {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	device := opts.Device
	if device == nil {
		device = kv.NewMemory()
	}

	var remote sessions.Remote
	if opts.Backend != nil {
		remote = opts.Backend
	}
	store := sessions.New(remote, device, logger)
	quota := NewQuotaCounter(opts.Backend, store, now, logger)
	tiers := NewTierResolver(opts.Backend, opts.Billing, device, opts.Sleep, logger)
	tiers.now = now

	r := router.New(opts.InitialURL)
	return &Coach{
		state: State{
			AuthLoading: true,
			Tier:        models.TierFree,
			TierSource:  SourceDefault,
			View:        r.View(),
		},
		store:    store,
		quota:    quota,
		access:   NewAccess(quota, opts.Mode, logger),
		tiers:    tiers,
		router:   r,
		review:   NewReviewPrompt(device),
		progress: progress.NewTracker(device),
		summary:  opts.Summarizer,
		auth:     opts.Auth,
		rng:      opts.Rand,
		now:      now,
		logger:   logger,
	}
}

// Snapshot returns a copy of the current state.
func (c *Coach) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Sessions = append([]models.Session(nil), c.state.Sessions...)
	if c.state.Remaining != nil {
		n := *c.state.Remaining
		s.Remaining = &n
	}
	if c.state.Progress != nil {
		p := *c.state.Progress
		s.Progress = &p
	}
	s.NewBadges = append([]progress.Badge(nil), c.state.NewBadges...)
	return s
}

// Remaining returns the sessions left this month, nil for premium.
func (c *Coach) Remaining() *int {
	return c.Snapshot().Remaining
}

func (c *Coach) CanStart(ctx context.Context) bool {
	s := c.Snapshot()
	return c.access.CanStart(ctx, s.Identity, s.Tier)
}

func (c *Coach) Mode() Mode {
	return c.access.Mode()
}

// SetIdentity applies a sign-in or sign-out: guard the current view,
// resolve the tier, then load sessions and quota together.
func (c *Coach) SetIdentity(ctx context.Context, id models.Identity) error {
	c.mu.Lock()
	c.state.Identity = id
	c.state.AuthLoading = false
	c.state.SessionsLoading = true
	c.state.Orphans = 0
	c.syncViewLocked(c.router.SetIdentity(id.Anonymous()))
	c.mu.Unlock()

	ts := c.tiers.Resolve(ctx, id)

	var (
		list      []models.Session
		remaining *int
		orphans   int
		loadErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, loadErr = c.store.Load(gctx, id)
		if loadErr != nil {
			c.logger.Error("session load failed", "identity", id.String(), "error", loadErr)
			list = nil
		}
		if !id.Anonymous() && len(list) == 0 {
			orphans, _ = c.store.Orphans(gctx)
		}
		return nil
	})
	g.Go(func() error {
		remaining = c.quota.Remaining(gctx, id, ts.Tier)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state.Identity != id {
		c.mu.Unlock()
		return nil
	}
	c.state.Tier = ts.Tier
	c.state.TierSource = ts.Source
	c.state.Sessions = list
	c.state.SessionsLoading = false
	c.state.Remaining = remaining
	c.state.Orphans = orphans
	c.mu.Unlock()

	c.refreshProgress(ctx, id, list, loadErr)
	return nil
}

// Navigate moves to v through the guard.
func (c *Coach) Navigate(v router.View) router.View {
	got := c.router.Navigate(v)
	c.mu.Lock()
	c.syncViewLocked(got)
	c.mu.Unlock()
	return got
}

func (c *Coach) Back() router.View {
	v, _ := c.router.Back()
	c.mu.Lock()
	c.syncViewLocked(v)
	c.mu.Unlock()
	return v
}

func (c *Coach) Forward() router.View {
	v, _ := c.router.Forward()
	c.mu.Lock()
	c.syncViewLocked(v)
	c.mu.Unlock()
	return v
}

// Path is the URL path of the current view.
func (c *Coach) Path() string {
	return c.router.Current().Path
}

func (c *Coach) syncViewLocked(v router.View) {
	c.state.View = v
	c.state.SignUpPrompt = router.PromptsSignUp(c.state.Identity.Anonymous(), v)
}

// StartPractice routes to the next step of starting a session.
func (c *Coach) StartPractice(ctx context.Context) router.View {
	s := c.Snapshot()
	if s.Identity.Anonymous() {
		return c.Navigate(router.Login)
	}
	if !c.access.CanStart(ctx, s.Identity, s.Tier) {
		c.logger.Info("practice blocked by quota", "user_id", s.Identity.UserID)
		return c.Navigate(router.Paywall)
	}
	if s.Tier == models.TierPremium {
		return c.Navigate(router.ScenarioSelection)
	}

	patient := GeneratePatient(c.rng)
	c.mu.Lock()
	c.state.Patient = &patient
	c.mu.Unlock()
	return c.Navigate(router.Practice)
}

// SelectScenario starts practice with a chosen patient.
func (c *Coach) SelectScenario(patient models.PatientProfile) router.View {
	c.mu.Lock()
	c.state.Patient = &patient
	c.mu.Unlock()
	return c.Navigate(router.Practice)
}

// RecordSession appends a finished session. The in-memory list is updated
// before the durable write, which never fails the call.
func (c *Coach) RecordSession(ctx context.Context, transcript []models.ChatMessage, feedback models.Feedback) models.Session {
	c.mu.Lock()
	id := c.state.Identity
	var patient models.PatientProfile
	if c.state.Patient != nil {
		patient = *c.state.Patient
	}
	sess := models.NewSession(c.now(), c.state.Tier, patient, transcript, feedback)
	sess.Sync = models.SyncPending
	c.state.Sessions = append(c.state.Sessions, sess)
	c.mu.Unlock()
	c.Navigate(router.Feedback)

	saved := c.store.Save(ctx, id, sess)

	due, err := c.review.Record(ctx)
	if err != nil {
		c.logger.Warn("review counter failed", "error", err)
	}

	c.mu.Lock()
	for i := range c.state.Sessions {
		if c.state.Sessions[i].ID == saved.ID {
			c.state.Sessions[i].Sync = saved.Sync
		}
	}
	c.state.ReviewDue = due
	list := append([]models.Session(nil), c.state.Sessions...)
	c.mu.Unlock()

	c.refreshQuota(ctx)
	c.refreshProgress(ctx, id, list, nil)
	return saved
}

// SetTier records a tier change and recomputes the quota.
func (c *Coach) SetTier(ctx context.Context, tier models.Tier) {
	c.tiers.Store(ctx, tier)
	c.mu.Lock()
	c.state.Tier = tier
	c.mu.Unlock()
	c.refreshQuota(ctx)
}

func (c *Coach) refreshQuota(ctx context.Context) {
	s := c.Snapshot()
	remaining := c.quota.Remaining(ctx, s.Identity, s.Tier)
	c.mu.Lock()
	if c.state.Identity == s.Identity && c.state.Tier == s.Tier {
		c.state.Remaining = remaining
	}
	c.mu.Unlock()
}

// HandleURL processes the URL the app was opened with: checkout returns
// and auth email callbacks. Callback parameters never stay in history.
func (c *Coach) HandleURL(ctx context.Context, raw string) (CheckoutResult, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return CheckoutResult{}, err
	}
	clean := router.StripCallbackParams(u)

	if cb, ok := router.ParseAuthCallback(u); ok {
		v := c.router.Replace(cb.View())
		c.mu.Lock()
		c.syncViewLocked(v)
		c.mu.Unlock()
		return CheckoutResult{}, nil
	}

	v := c.router.Replace(router.ViewForPath(clean.Path))
	c.mu.Lock()
	c.syncViewLocked(v)
	id := c.state.Identity
	c.mu.Unlock()

	ret, ok := router.ParseCheckoutReturn(u)
	if !ok {
		return CheckoutResult{}, nil
	}

	res := c.tiers.ConfirmCheckout(ctx, id, ret)
	c.mu.Lock()
	if res.Confirmed {
		c.state.Tier = models.TierPremium
		c.state.TierSource = SourceBackend
		c.state.Remaining = nil
		c.state.Notice = "Welcome to Premium!"
	} else {
		c.state.Notice = res.Notice
	}
	c.mu.Unlock()
	return res, nil
}

// Logout signs out once. Calls made while a sign-out is in flight return
// immediately.
func (c *Coach) Logout(ctx context.Context) error {
	if !c.logoutMu.TryLock() {
		return nil
	}
	defer c.logoutMu.Unlock()

	c.mu.Lock()
	c.state.LoggingOut = true
	device := c.state.Identity.DeviceID
	c.mu.Unlock()

	var err error
	if c.auth != nil {
		if err = c.auth.SignOut(ctx); err != nil {
			c.logger.Error("sign out failed", "error", err)
		}
	}
	c.tiers.ClearCache(ctx)

	anon := models.Identity{DeviceID: device}
	v := c.router.SetIdentity(true)
	c.mu.Lock()
	c.state.Identity = anon
	c.state.Tier = models.TierFree
	c.state.TierSource = SourceDefault
	c.state.Sessions = nil
	c.state.Remaining = nil
	c.state.Patient = nil
	c.state.CoachingSummary = nil
	c.state.Progress = nil
	c.state.NewBadges = nil
	c.syncViewLocked(v)
	c.mu.Unlock()

	c.Navigate(router.Login)

	// Device sessions still count toward the anonymous quota.
	list, lerr := c.store.Load(ctx, anon)
	if lerr != nil {
		c.logger.Error("session load failed", "identity", anon.String(), "error", lerr)
	}
	remaining := c.quota.Remaining(ctx, anon, models.TierFree)

	c.mu.Lock()
	if c.state.Identity == anon {
		c.state.Sessions = list
		c.state.Remaining = remaining
	}
	c.state.LoggingOut = false
	c.mu.Unlock()

	c.refreshProgress(ctx, anon, list, lerr)
	return err
}

// GenerateCoachingSummary builds the premium coaching summary from premium
// sessions and shows it.
func (c *Coach) GenerateCoachingSummary(ctx context.Context) (models.CoachingSummary, error) {
	s := c.Snapshot()
	if s.Identity.Anonymous() {
		c.Navigate(router.Login)
		return models.CoachingSummary{}, ErrSignInRequired
	}
	if err := CanGenerateSummary(s.Tier, s.Sessions); err != nil {
		if errors.Is(err, ErrPremiumRequired) {
			c.Navigate(router.Paywall)
		} else {
			c.setNotice("Complete a premium practice session to unlock your coaching summary.")
		}
		return models.CoachingSummary{}, err
	}
	if c.summary == nil {
		return models.CoachingSummary{}, errors.New("coach: no summary generator configured")
	}

	c.mu.Lock()
	c.state.GeneratingSummary = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.state.GeneratingSummary = false
		c.mu.Unlock()
	}()

	sum, err := c.summary.CoachingSummary(ctx, PremiumSessions(s.Sessions))
	if err != nil {
		c.logger.Error("coaching summary failed", "user_id", s.Identity.UserID, "error", err)
		c.setNotice("We couldn't generate your coaching summary. Please try again.")
		return models.CoachingSummary{}, err
	}
	c.mu.Lock()
	c.state.CoachingSummary = &sum
	c.mu.Unlock()
	c.Navigate(router.CoachingSummary)
	return sum, nil
}

// MigrateOrphans moves device-only sessions into the signed-in account and
// reloads the session list.
func (c *Coach) MigrateOrphans(ctx context.Context) (int, error) {
	s := c.Snapshot()
	if s.Identity.Anonymous() {
		return 0, ErrSignInRequired
	}
	n, err := c.store.MigrateOrphans(ctx, s.Identity)
	if n > 0 {
		if list, lerr := c.store.Load(ctx, s.Identity); lerr == nil {
			c.mu.Lock()
			c.state.Sessions = list
			c.state.Orphans = 0
			c.mu.Unlock()
			c.refreshProgress(ctx, s.Identity, list, nil)
		}
		c.refreshQuota(ctx)
	}
	return n, err
}

// SyncPending replays sessions whose backend write failed.
func (c *Coach) SyncPending(ctx context.Context) (sessions.SyncResult, error) {
	s := c.Snapshot()
	res, err := c.store.SyncPending(ctx, s.Identity)
	if err != nil {
		return res, err
	}
	if res.Synced > 0 {
		if list, lerr := c.store.Load(ctx, s.Identity); lerr == nil {
			c.mu.Lock()
			c.state.Sessions = list
			c.mu.Unlock()
			c.refreshProgress(ctx, s.Identity, list, nil)
		}
		c.refreshQuota(ctx)
	}
	return res, nil
}

// refreshProgress recomputes streak, experience and badges from list. The
// device keeps a copy for anonymous learners, which stands in when their
// sessions could not be read.
func (c *Coach) refreshProgress(ctx context.Context, id models.Identity, list []models.Session, loadErr error) {
	now := c.now()
	var p progress.Progress
	switch {
	case loadErr != nil && id.Anonymous():
		stored, ok, err := c.progress.Load(ctx, now)
		if err != nil {
			c.logger.Warn("stored progress unreadable", "error", err)
		}
		if !ok {
			return
		}
		p = stored
	case loadErr != nil:
		return
	default:
		p = progress.Compute(list, now)
		if id.Anonymous() {
			if err := c.progress.Save(ctx, p); err != nil {
				c.logger.Warn("progress save failed", "error", err)
			}
		}
	}

	unseen, err := c.progress.Unseen(ctx, p.Badges, now)
	if err != nil {
		c.logger.Warn("badge tracking failed", "error", err)
	}
	c.mu.Lock()
	if c.state.Identity == id {
		c.state.Progress = &p
		c.state.NewBadges = unseen
	}
	c.mu.Unlock()
}

// Report scores the loaded session history.
func (c *Coach) Report() progress.Report {
	return progress.BuildReport(c.Snapshot().Sessions)
}

// AcknowledgeBadges marks every unlocked badge as seen.
func (c *Coach) AcknowledgeBadges(ctx context.Context) error {
	c.mu.Lock()
	c.state.NewBadges = nil
	c.mu.Unlock()
	return c.progress.MarkSeen(ctx)
}

// DismissReview and RemindReviewLater answer the review prompt.
func (c *Coach) DismissReview(ctx context.Context) error {
	c.mu.Lock()
	c.state.ReviewDue = false
	c.mu.Unlock()
	return c.review.Dismiss(ctx)
}

func (c *Coach) RemindReviewLater(ctx context.Context) error {
	c.mu.Lock()
	c.state.ReviewDue = false
	c.mu.Unlock()
	return c.review.RemindLater(ctx)
}

// ClearNotice acknowledges the current notice.
func (c *Coach) ClearNotice() {
	c.setNotice("")
}

func (c *Coach) setNotice(msg string) {
	c.mu.Lock()
	c.state.Notice = msg
	c.mu.Unlock()
}
