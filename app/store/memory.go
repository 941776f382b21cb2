package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

// Memory is an in-process Store for offline development and tests.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
	sessions map[string][]models.Session
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]models.Profile),
		sessions: make(map[string][]models.Session),
		now:      time.Now,
	}
}

func (m *Memory) GetUserProfile(_ context.Context, userID string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) CreateUserProfile(_ context.Context, userID string, tier models.Tier) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		return &p, nil
	}
	now := m.now()
	p := models.Profile{UserID: userID, Tier: tier, CreatedAt: now, UpdatedAt: now}
	m.profiles[userID] = p
	return &p, nil
}

func (m *Memory) UpdateTier(_ context.Context, userID string, tier models.Tier) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	p.Tier = tier
	p.UpdatedAt = m.now()
	m.profiles[userID] = p
	return &p, nil
}

func (m *Memory) SetStripeCustomer(_ context.Context, userID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return ErrProfileNotFound
	}
	p.StripeCustomerID = customerID
	m.profiles[userID] = p
	return nil
}

func (m *Memory) GetUserSessions(_ context.Context, userID string) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.Session(nil), m.sessions[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	for i := range out {
		out[i].Sync = models.SyncSynced
	}
	return out, nil
}

func (m *Memory) SaveSession(_ context.Context, userID string, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions[userID] {
		if existing.ID == s.ID {
			return nil
		}
	}
	s.Sync = ""
	m.sessions[userID] = append(m.sessions[userID], s)
	return nil
}

func (m *Memory) GetSessionCount(_ context.Context, userID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	n := 0
	for _, s := range m.sessions[userID] {
		if s.Tier == models.TierFree && !s.Date.Before(since) && !s.Date.After(now) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}
