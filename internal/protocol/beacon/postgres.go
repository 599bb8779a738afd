package beacon

import (
	"context"
	"database/sql"
	"errors"
)

// Postgres implementa o RoundStore sobre a tabela beacon_rounds (append-only)
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Get(ctx context.Context, round uint64) (*Round, error) {
	var r Round
	err := p.db.QueryRowContext(ctx, `
		SELECT round, randomness, signature, observed_at, verified
		FROM beacon_rounds WHERE round=$1`, int64(round),
	).Scan(&r.Round, &r.Randomness, &r.Signature, &r.Timestamp, &r.Verified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Put insere o round se ainda não existe. Rounds publicados são imutáveis,
// então conflito de chave vira no-op em vez de update.
func (p *Postgres) Put(ctx context.Context, r Round) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO beacon_rounds (round, randomness, signature, observed_at, verified)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (round) DO NOTHING`,
		int64(r.Round), r.Randomness, r.Signature, r.Timestamp, r.Verified,
	)
	return err
}

func (p *Postgres) Latest(ctx context.Context) (*Round, error) {
	var r Round
	err := p.db.QueryRowContext(ctx, `
		SELECT round, randomness, signature, observed_at, verified
		FROM beacon_rounds ORDER BY round DESC LIMIT 1`,
	).Scan(&r.Round, &r.Randomness, &r.Signature, &r.Timestamp, &r.Verified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
