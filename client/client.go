// Package client is a typed HTTP client for the practice coach API. It
// implements the controller's backend, billing, summary and sign-out ports.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/auth"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/progress"
)

const defaultTimeout = 60 * time.Second

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an API error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL  string
	httpc    *http.Client
	deviceID string

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithToken sets the Supabase access token sent as a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithDeviceID identifies an anonymous device to the API.
func WithDeviceID(id string) Option {
	return func(c *Client) { c.deviceID = id }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SignedIn reports whether a token is set.
func (c *Client) SignedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// SignOut forgets the access token. Further calls are anonymous.
func (c *Client) SignOut(context.Context) error {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.deviceID != "" {
		req.Header.Set(auth.DeviceHeader, c.deviceID)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// GetUserSessions lists the caller's sessions. The user id is implied by the token.
func (c *Client) GetUserSessions(ctx context.Context, _ string) ([]models.Session, error) {
	var out struct {
		Sessions []models.Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) SaveSession(ctx context.Context, _ string, s models.Session) error {
	return c.do(ctx, http.MethodPost, "/api/sessions", s, nil)
}

// GetUserProfile returns (nil, nil) when the API has no profile.
func (c *Client) GetUserProfile(ctx context.Context, _ string) (*models.Profile, error) {
	var p models.Profile
	err := c.do(ctx, http.MethodGet, "/api/profile", nil, &p)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateUserProfile creates a free profile; tier is decided by billing.
func (c *Client) CreateUserProfile(ctx context.Context, _ string, _ models.Tier) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodPost, "/api/profile", struct{}{}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetSessionCount returns the API's count of this month's free sessions.
// The API always counts from the start of its current month.
func (c *Client) GetSessionCount(ctx context.Context, _ string, _ time.Time) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) UpdateTierFromSession(ctx context.Context, sessionID string) (models.TierUpdate, error) {
	var out models.TierUpdate
	err := c.do(ctx, http.MethodPost, "/api/update-tier-from-session", map[string]string{"sessionId": sessionID}, &out)
	return out, err
}

// CoachingSummary asks the API to summarise the caller's stored premium
// sessions; the list passed in is not sent.
func (c *Client) CoachingSummary(ctx context.Context, _ []models.Session) (models.CoachingSummary, error) {
	var out models.CoachingSummary
	err := c.do(ctx, http.MethodPost, "/api/coaching-summary", struct{}{}, &out)
	return out, err
}

// Status is the API's view of the caller.
type Status struct {
	UserID       string      `json:"userId"`
	Anonymous    bool        `json:"anonymous"`
	Tier         models.Tier `json:"tier"`
	Remaining    *int        `json:"remaining"`
	MonthlyLimit int         `json:"monthlyLimit"`
	CanStart     bool        `json:"canStart"`
}

func (c *Client) Me(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/api/me", nil, &out)
	return out, err
}

// Progress fetches streak, experience and badges, counting days in the
// named time zone.
func (c *Client) Progress(ctx context.Context, tz string) (progress.Progress, error) {
	path := "/api/progress"
	if tz != "" {
		path += "?tz=" + url.QueryEscape(tz)
	}
	var out progress.Progress
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Report(ctx context.Context) (progress.Report, error) {
	var out progress.Report
	err := c.do(ctx, http.MethodGet, "/api/report", nil, &out)
	return out, err
}

func (c *Client) AnalyzeSession(ctx context.Context, patient models.PatientProfile, transcript []models.ChatMessage) (models.Feedback, error) {
	var out models.Feedback
	err := c.do(ctx, http.MethodPost, "/api/analyze-session", map[string]any{
		"patient":    patient,
		"transcript": transcript,
	}, &out)
	return out, err
}

func (c *Client) CreateCheckout(ctx context.Context, plan models.Plan) (models.CheckoutSession, error) {
	var out models.CheckoutSession
	err := c.do(ctx, http.MethodPost, "/api/create-checkout-session", map[string]string{"plan": string(plan)}, &out)
	return out, err
}

func (c *Client) GetSubscription(ctx context.Context) (models.SubscriptionDetails, error) {
	var out models.SubscriptionDetails
	err := c.do(ctx, http.MethodGet, "/api/get-subscription", nil, &out)
	return out, err
}

// PortalURL returns a Stripe customer portal link that comes back to returnURL.
func (c *Client) PortalURL(ctx context.Context, returnURL string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.do(ctx, http.MethodPost, "/api/create-billing-portal-session", map[string]string{"returnUrl": returnURL}, &out)
	return out.URL, err
}
