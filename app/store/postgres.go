package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id            TEXT PRIMARY KEY,
	tier               TEXT NOT NULL DEFAULT 'free' CHECK (tier IN ('free', 'premium')),
	stripe_customer_id TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	user_id      TEXT NOT NULL,
	id           TEXT NOT NULL,
	session_date TIMESTAMPTZ NOT NULL,
	tier         TEXT NOT NULL CHECK (tier IN ('free', 'premium')),
	patient      JSONB NOT NULL,
	transcript   JSONB NOT NULL,
	feedback     JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, id)
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_date ON sessions (user_id, session_date);
`

type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with lib/pq and pings.
func OpenPostgres(ctx context.Context, dsn string, maxOpen int) (*Postgres, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if maxOpen > 0 {
		d.SetMaxOpenConns(maxOpen)
	}
	d.SetConnMaxLifetime(5 * time.Minute)

	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return &Postgres{db: d}, nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the tables when they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) GetUserProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var prof models.Profile
	var customer sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id, tier, stripe_customer_id, created_at, updated_at
		FROM profiles
		WHERE user_id = $1;
	`, userID).Scan(&prof.UserID, &prof.Tier, &customer, &prof.CreatedAt, &prof.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	prof.StripeCustomerID = customer.String
	return &prof, nil
}

func (p *Postgres) CreateUserProfile(ctx context.Context, userID string, tier models.Tier) (*models.Profile, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, tier)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING;
	`, userID, tier)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	prof, err := p.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prof == nil {
		return nil, ErrProfileNotFound
	}
	return prof, nil
}

func (p *Postgres) UpdateTier(ctx context.Context, userID string, tier models.Tier) (*models.Profile, error) {
	var prof models.Profile
	var customer sql.NullString
	err := p.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET tier = $1, updated_at = now()
		WHERE user_id = $2
		RETURNING user_id, tier, stripe_customer_id, created_at, updated_at;
	`, tier, userID).Scan(&prof.UserID, &prof.Tier, &customer, &prof.CreatedAt, &prof.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update tier: %w", err)
	}
	prof.StripeCustomerID = customer.String
	return &prof, nil
}

func (p *Postgres) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE profiles
		SET stripe_customer_id = $1, updated_at = now()
		WHERE user_id = $2;
	`, customerID, userID)
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (p *Postgres) GetUserSessions(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_date, tier, patient, transcript, feedback
		FROM sessions
		WHERE user_id = $1
		ORDER BY session_date ASC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var s models.Session
		var patient, transcript, feedback []byte
		if err := rows.Scan(&s.ID, &s.Date, &s.Tier, &patient, &transcript, &feedback); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal(patient, &s.Patient); err != nil {
			return nil, fmt.Errorf("decode patient %s: %w", s.ID, err)
		}
		if err := json.Unmarshal(transcript, &s.Transcript); err != nil {
			return nil, fmt.Errorf("decode transcript %s: %w", s.ID, err)
		}
		if err := json.Unmarshal(feedback, &s.Feedback); err != nil {
			return nil, fmt.Errorf("decode feedback %s: %w", s.ID, err)
		}
		s.Sync = models.SyncSynced
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveSession(ctx context.Context, userID string, s models.Session) error {
	if !s.Tier.Valid() {
		return fmt.Errorf("save session: invalid tier %q", s.Tier)
	}
	patient, err := json.Marshal(s.Patient)
	if err != nil {
		return err
	}
	transcript, err := json.Marshal(nonNil(s.Transcript))
	if err != nil {
		return err
	}
	feedback, err := json.Marshal(s.Feedback)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, id, session_date, tier, patient, transcript, feedback)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, id) DO NOTHING;
	`, userID, s.ID, s.Date, s.Tier, patient, transcript, feedback)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *Postgres) GetSessionCount(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM sessions
		WHERE user_id = $1 AND tier = 'free' AND session_date >= $2 AND session_date <= now();
	`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Transient reports database errors worth retrying: connection failures,
// serialization conflicts and resource exhaustion.
func Transient(err error) bool {
	if err == nil || errors.Is(err, ErrProfileNotFound) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := string(pqErr.Code.Class())
		return class == "08" || class == "40" || class == "53" || class == "57"
	}
	return true
}

func nonNil(m []models.ChatMessage) []models.ChatMessage {
	if m == nil {
		return []models.ChatMessage{}
	}
	return m
}
