package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/auth"
	"github.com/Edjavier-collab/Main2MI-sub000/client"
	"github.com/Edjavier-collab/Main2MI-sub000/coach"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/kv"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/router"
)

const maxHistory = 50

// navHistory mirrors the browser history between runs.
type navHistory struct {
	Paths []string `json:"paths"`
	Index int      `json:"index"`
}

func (h *navHistory) push(path string) {
	if h.Index < len(h.Paths) && h.Paths[h.Index] == path {
		return
	}
	if len(h.Paths) > 0 {
		h.Paths = h.Paths[:h.Index+1]
	}
	h.Paths = append(h.Paths, path)
	if len(h.Paths) > maxHistory {
		h.Paths = h.Paths[len(h.Paths)-maxHistory:]
	}
	h.Index = len(h.Paths) - 1
}

type runtime struct {
	coach   *coach.Coach
	client  *client.Client
	device  *kv.SQLite
	history navHistory
	// stepped is set by back/forward, which move the index instead of pushing.
	stepped bool
}

var current *runtime

// openRuntime builds the controller for the configured user and restores
// the view they left on.
func openRuntime(ctx context.Context) (*runtime, error) {
	if current != nil {
		return current, nil
	}
	m, err := coach.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DeviceDB), 0o700); err != nil {
		return nil, fmt.Errorf("create device dir: %w", err)
	}
	device, err := kv.OpenSQLite(cfg.DeviceDB)
	if err != nil {
		return nil, err
	}

	deviceID, err := ensureDeviceID(ctx, device)
	if err != nil {
		device.Close()
		return nil, err
	}

	opts := []client.Option{
		client.WithDeviceID(deviceID),
		client.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.Token != "" {
		opts = append(opts, client.WithToken(cfg.Token))
	}
	api := client.New(cfg.APIURL, opts...)

	rt := &runtime{client: api, device: device}
	if err := kv.GetJSON(ctx, device, kv.KeyHistory, &rt.history); err != nil && !errors.Is(err, kv.ErrNotFound) {
		logger.Warn("history unreadable", "error", err)
		rt.history = navHistory{}
	}
	initial := "/"
	if len(rt.history.Paths) > 0 {
		initial = rt.history.Paths[0]
	} else if last, err := kv.GetString(ctx, device, kv.KeyLastPath); err == nil && last != "" {
		initial = last
	}

	rt.coach = coach.New(coach.Options{
		Backend:    api,
		Billing:    api,
		Summarizer: api,
		Auth:       api,
		Device:     device,
		Mode:       m,
		InitialURL: initial,
		Logger:     logger,
	})
	if err := rt.coach.SetIdentity(ctx, resolveIdentity(ctx, api, deviceID)); err != nil {
		device.Close()
		return nil, err
	}
	rt.replay()

	current = rt
	return rt, nil
}

func ensureDeviceID(ctx context.Context, device kv.Store) (string, error) {
	id, err := kv.GetString(ctx, device, kv.KeyDeviceID)
	if err == nil && auth.ValidDeviceID(id) {
		return id, nil
	}
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return "", err
	}
	id = auth.NewDeviceID()
	if err := device.Set(ctx, kv.KeyDeviceID, []byte(id)); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	return id, nil
}

// resolveIdentity asks the API who the token belongs to. When the API is
// unreachable the configured user id stands in.
func resolveIdentity(ctx context.Context, api *client.Client, deviceID string) models.Identity {
	id := models.Identity{DeviceID: deviceID}
	if !api.SignedIn() {
		return id
	}
	st, err := api.Me(ctx)
	switch {
	case err == nil && !st.Anonymous:
		id.UserID = st.UserID
	case err == nil:
		logger.Warn("token not accepted, continuing signed out")
		return id
	case cfg.UserID != "":
		logger.Warn("identity lookup failed, using configured user", "user_id", cfg.UserID, "error", err)
		id.UserID = cfg.UserID
	default:
		logger.Warn("identity lookup failed, continuing signed out", "error", err)
		return id
	}
	id.Email = cfg.Email
	return id
}

// replay walks the stored history so back and forward work across runs.
func (rt *runtime) replay() {
	h := rt.history
	if len(h.Paths) == 0 {
		rt.history.push(rt.coach.Path())
		return
	}
	for _, p := range h.Paths[1:] {
		rt.coach.Navigate(router.ViewForPath(p))
	}
	for i := len(h.Paths) - 1; i > h.Index; i-- {
		rt.coach.Back()
	}
}

func (rt *runtime) back() router.View {
	v := rt.coach.Back()
	if rt.history.Index > 0 {
		rt.history.Index--
	}
	rt.stepped = true
	return v
}

func (rt *runtime) forward() router.View {
	v := rt.coach.Forward()
	if rt.history.Index < len(rt.history.Paths)-1 {
		rt.history.Index++
	}
	rt.stepped = true
	return v
}

func (rt *runtime) close(ctx context.Context) error {
	if !rt.stepped {
		rt.history.push(rt.coach.Path())
	}
	errs := []error{
		kv.SetJSON(ctx, rt.device, kv.KeyHistory, rt.history),
		rt.device.Set(ctx, kv.KeyLastPath, []byte(rt.coach.Path())),
	}
	errs = append(errs, rt.device.Close())
	return errors.Join(errs...)
}

func closeRuntime() {
	if current == nil {
		return
	}
	rt := current
	current = nil
	if err := rt.close(context.Background()); err != nil && logger != nil {
		logger.Error("device store close failed", "error", err)
	}
}
