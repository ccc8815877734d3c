package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/dethi/internal/model"
)

// GatePassTTL bounds how long a browser stays signed in to a gated
// deployment.
const GatePassTTL = 12 * time.Hour

// IssueGatePass records a fresh pass and returns its token.
func (s *Store) IssueGatePass(ctx context.Context) (string, error) {
	var raw [24]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("gate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw[:])
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO gate_passes (token, issued_at, expires_at) VALUES (?, ?, ?)`,
		token, now, now.Add(GatePassTTL),
	); err != nil {
		return "", fmt.Errorf("issue gate pass: %w", err)
	}
	return token, nil
}

// GatePass looks up a live pass. Unknown and lapsed tokens yield nil with
// no error; a lapsed row is removed on the way out.
func (s *Store) GatePass(ctx context.Context, token string) (*model.GatePass, error) {
	if token == "" {
		return nil, nil
	}
	var p model.GatePass
	err := s.db.QueryRowContext(ctx,
		`SELECT token, issued_at, expires_at FROM gate_passes WHERE token = ?`, token,
	).Scan(&p.Token, &p.IssuedAt, &p.ExpiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("look up gate pass: %w", err)
	}
	if p.Expired(time.Now()) {
		if err := s.RevokeGatePass(ctx, token); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &p, nil
}

// RevokeGatePass drops a pass. Revoking an unknown token is not an error.
func (s *Store) RevokeGatePass(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM gate_passes WHERE token = ?`, token); err != nil {
		return fmt.Errorf("revoke gate pass: %w", err)
	}
	return nil
}

// PruneGatePasses deletes every lapsed pass and reports how many went.
func (s *Store) PruneGatePasses(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM gate_passes WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("prune gate passes: %w", err)
	}
	return res.RowsAffected()
}
