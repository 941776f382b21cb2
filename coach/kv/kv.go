// Package kv is the device storage port: a small string-keyed byte store
// with in-memory, SQLite and Redis implementations.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("kv: key not found")

// Keys persisted on the device.
const (
	KeyTier               = "mi-coach-tier"
	KeyAnonymousSessions  = "mi-coach-anonymous-sessions"
	KeyLegacySessions     = "mi-coach-sessions"
	KeyPendingSync        = "mi-coach-pending-sync"
	KeySessionCount       = "mi-coach-session-count"
	KeyOnboardingComplete = "mi-coach-onboarding-complete"
	KeyCookieConsent      = "mi-coach-cookie-consent"
	KeyReviewDismissed    = "mi-coach-review-dismissed"
	KeyReviewRemindAfter  = "mi-coach-review-remind-after"
	KeyAgeAcceptedAt      = "mi-coach-age-accepted-at"
	KeyTermsAcceptedAt    = "mi-coach-terms-accepted-at"
	KeyPrivacyAcceptedAt  = "mi-coach-privacy-accepted-at"
	KeyLastPath           = "mi-coach-last-path"
	KeyHistory            = "mi-coach-history"
	KeyDeviceID           = "mi-coach-device-id"
	KeyStreak             = "mi-coach-streak"
	KeyXP                 = "mi-coach-xp"
	KeyBadges             = "mi-coach-badges"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes the value at key into v. It returns ErrNotFound when the
// key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// GetString returns the value at key, or "" when absent.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type prefixed struct {
	inner  Store
	prefix string
}

// Prefixed namespaces every key as "<ns>:<key>".
func Prefixed(s Store, ns string) Store {
	return &prefixed{inner: s, prefix: ns + ":"}
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}
