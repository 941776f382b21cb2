// Package sessions loads and appends practice sessions, choosing between
// the backend for signed-in users and device storage for anonymous ones.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/kv"
)

// MaxSyncAttempts bounds how often a pending session is replayed before it
// is dropped from the queue.
const MaxSyncAttempts = 5

var ErrAnonymous = errors.New("sessions: operation requires a signed-in user")

// Remote is the backend half of the store.
type Remote interface {
	GetUserSessions(ctx context.Context, userID string) ([]models.Session, error)
	SaveSession(ctx context.Context, userID string, s models.Session) error
}

type pendingEntry struct {
	UserID   string         `json:"userId"`
	Session  models.Session `json:"session"`
	Attempts int            `json:"attempts"`
}

type Store struct {
	remote Remote
	local  kv.Store
	logger *slog.Logger

	// queueMu serialises read-modify-write cycles on device lists.
	queueMu sync.Mutex
}

// New builds a Store. remote may be nil when no backend is configured.
func New(remote Remote, local kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{remote: remote, local: local, logger: logger}
}

// Load returns the identity's sessions ordered by date. Sessions still
// waiting to reach the backend are included with a pending status.
func (s *Store) Load(ctx context.Context, id models.Identity) ([]models.Session, error) {
	if id.Anonymous() {
		return s.readList(ctx, kv.KeyAnonymousSessions)
	}
	if s.remote == nil {
		return nil, errors.New("sessions: no backend configured")
	}

	list, err := s.remote.GetUserSessions(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for i := range list {
		if list[i].Sync == "" {
			list[i].Sync = models.SyncSynced
		}
	}

	pending, err := s.readPending(ctx)
	if err != nil {
		s.logger.Warn("pending queue unreadable", "user_id", id.UserID, "error", err)
	}
	seen := make(map[string]bool, len(list))
	for _, sess := range list {
		seen[sess.ID] = true
	}
	for _, p := range pending {
		if p.UserID == id.UserID && !seen[p.Session.ID] {
			sess := p.Session
			sess.Sync = models.SyncPending
			list = append(list, sess)
		}
	}

	if len(list) == 0 {
		if n, err := s.Orphans(ctx); err == nil && n > 0 {
			s.logger.Warn("orphaned device sessions detected",
				"user_id", id.UserID, "count", n)
		}
	}

	sortByDate(list)
	return list, nil
}

// Save appends sess. Backend failures are logged and the session is kept
// on the device with a pending status; Save never fails the caller.
func (s *Store) Save(ctx context.Context, id models.Identity, sess models.Session) models.Session {
	if id.Anonymous() {
		sess.Sync = models.SyncLocal
		if err := s.appendList(ctx, kv.KeyAnonymousSessions, sess); err != nil {
			s.logger.Error("device session write failed", "session_id", sess.ID, "error", err)
		}
		return sess
	}

	sess.Sync = ""
	var err error
	if s.remote == nil {
		err = errors.New("no backend configured")
	} else {
		err = s.remote.SaveSession(ctx, id.UserID, sess)
	}
	if err == nil {
		sess.Sync = models.SyncSynced
		return sess
	}

	s.logger.Error("session save failed, queued for sync",
		"user_id", id.UserID, "session_id", sess.ID, "error", err)
	sess.Sync = models.SyncPending
	if qerr := s.enqueue(ctx, id.UserID, sess); qerr != nil {
		s.logger.Error("pending queue write failed", "session_id", sess.ID, "error", qerr)
	}
	return sess
}

type SyncResult struct {
	Synced    int
	Remaining int
	Dropped   int
}

// SyncPending replays queued sessions for the identity.
func (s *Store) SyncPending(ctx context.Context, id models.Identity) (SyncResult, error) {
	var res SyncResult
	if id.Anonymous() {
		return res, ErrAnonymous
	}
	if s.remote == nil {
		return res, errors.New("sessions: no backend configured")
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	pending, err := s.readPending(ctx)
	if err != nil {
		return res, err
	}
	keep := pending[:0]
	for _, p := range pending {
		if p.UserID != id.UserID {
			keep = append(keep, p)
			continue
		}
		sess := p.Session
		sess.Sync = ""
		if err := s.remote.SaveSession(ctx, p.UserID, sess); err != nil {
			p.Attempts++
			if p.Attempts >= MaxSyncAttempts {
				s.logger.Error("dropping session after repeated sync failures",
					"user_id", p.UserID, "session_id", sess.ID, "attempts", p.Attempts, "error", err)
				res.Dropped++
				continue
			}
			res.Remaining++
			keep = append(keep, p)
			continue
		}
		res.Synced++
	}
	if err := s.writePending(ctx, keep); err != nil {
		return res, err
	}
	if res.Synced > 0 {
		s.logger.Info("pending sessions synced", "user_id", id.UserID, "count", res.Synced)
	}
	return res, nil
}

// Orphans counts sessions left on the device from anonymous use or from
// the legacy single-list layout.
func (s *Store) Orphans(ctx context.Context) (int, error) {
	n := 0
	for _, key := range []string{kv.KeyLegacySessions, kv.KeyAnonymousSessions} {
		list, err := s.readList(ctx, key)
		if err != nil {
			return 0, err
		}
		n += len(list)
	}
	return n, nil
}

// MigrateOrphans uploads device-only sessions to the signed-in account.
// Sessions keep their original tier tag. Entries that fail to upload stay
// on the device.
func (s *Store) MigrateOrphans(ctx context.Context, id models.Identity) (int, error) {
	if id.Anonymous() {
		return 0, ErrAnonymous
	}
	if s.remote == nil {
		return 0, errors.New("sessions: no backend configured")
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	migrated := 0
	var errs []error
	for _, key := range []string{kv.KeyLegacySessions, kv.KeyAnonymousSessions} {
		list, err := s.readList(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var left []models.Session
		for _, sess := range list {
			sess.Sync = ""
			if sess.Tier == "" {
				sess.Tier = models.TierFree
			}
			if err := s.remote.SaveSession(ctx, id.UserID, sess); err != nil {
				errs = append(errs, fmt.Errorf("migrate %s: %w", sess.ID, err))
				left = append(left, sess)
				continue
			}
			migrated++
		}
		if err := s.writeList(ctx, key, left); err != nil {
			errs = append(errs, err)
		}
	}
	if migrated > 0 {
		s.logger.Info("device sessions migrated", "user_id", id.UserID, "count", migrated)
	}
	return migrated, errors.Join(errs...)
}

func (s *Store) readList(ctx context.Context, key string) ([]models.Session, error) {
	var list []models.Session
	err := kv.GetJSON(ctx, s.local, key, &list)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sortByDate(list)
	return list, nil
}

func (s *Store) writeList(ctx context.Context, key string, list []models.Session) error {
	if len(list) == 0 {
		return s.local.Delete(ctx, key)
	}
	return kv.SetJSON(ctx, s.local, key, list)
}

func (s *Store) appendList(ctx context.Context, key string, sess models.Session) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	list, err := s.readList(ctx, key)
	if err != nil {
		return err
	}
	return s.writeList(ctx, key, append(list, sess))
}

func (s *Store) readPending(ctx context.Context) ([]pendingEntry, error) {
	var list []pendingEntry
	err := kv.GetJSON(ctx, s.local, kv.KeyPendingSync, &list)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	return list, err
}

func (s *Store) writePending(ctx context.Context, list []pendingEntry) error {
	if len(list) == 0 {
		return s.local.Delete(ctx, kv.KeyPendingSync)
	}
	return kv.SetJSON(ctx, s.local, kv.KeyPendingSync, list)
}

func (s *Store) enqueue(ctx context.Context, userID string, sess models.Session) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	list, err := s.readPending(ctx)
	if err != nil {
		return err
	}
	return s.writePending(ctx, append(list, pendingEntry{UserID: userID, Session: sess}))
}

func sortByDate(list []models.Session) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Date.Before(list[j].Date)
	})
}
