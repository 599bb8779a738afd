package seed

import (
	"context"
	"database/sql"
	"errors"
)

// Postgres implementa o Store sobre a tabela seed_commitments
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Insert grava o commitment do slot. ON CONFLICT DO NOTHING + RowsAffected
// torna a detecção de duplicidade atômica no banco, sem corrida.
func (p *Postgres) Insert(ctx context.Context, c Commitment) error {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO seed_commitments (slot_id, seed, commitment, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (slot_id) DO NOTHING`,
		c.SlotID, c.Seed, c.Commitment, c.CreatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateSlot
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, slotID string) (*Commitment, error) {
	var c Commitment
	err := p.db.QueryRowContext(ctx, `
		SELECT slot_id, seed, commitment, created_at
		FROM seed_commitments WHERE slot_id=$1`, slotID,
	).Scan(&c.SlotID, &c.Seed, &c.Commitment, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownSlot
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
