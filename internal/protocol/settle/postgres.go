package settle

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Postgres implementa o BetStore sobre as tabelas wagers/wager_transitions.
// Cada transição roda em transação, trava a linha com FOR UPDATE e confere o
// status de origem — a mesma disciplina do reserve/commit de carteira.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Create(ctx context.Context, b *Bet) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wagers (id, participant_a, stake_cents, game_class, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.ParticipantA, b.StakeCents, b.GameClass, b.Status, b.CreatedAt,
	)
	return err
}

func (p *Postgres) Get(ctx context.Context, id string) (*Bet, error) {
	return scanBet(p.db.QueryRowContext(ctx, `
		SELECT id, participant_a, COALESCE(participant_b,''), stake_cents, game_class,
		       status, COALESCE(beacon_round,0), COALESCE(randomness,''),
		       COALESCE(roll_a,0), COALESCE(roll_b,0), COALESCE(winner,''),
		       COALESCE(tx_hash,''), COALESCE(reason,''), created_at, settled_at
		FROM wagers WHERE id=$1`, id))
}

func (p *Postgres) Activate(ctx context.Context, id, participantB string) error {
	return p.transition(ctx, id, StatusActive, func(tx *sql.Tx, cur string) error {
		if cur != StatusPending {
			return ErrInvalidTransition
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE wagers SET status=$1, participant_b=$2, updated_at=NOW() WHERE id=$3`,
			StatusActive, participantB, id)
		return err
	})
}

func (p *Postgres) PinRound(ctx context.Context, id string, round uint64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	var pinned int64
	err = tx.QueryRowContext(ctx,
		`SELECT status, COALESCE(beacon_round,0) FROM wagers WHERE id=$1 FOR UPDATE`, id,
	).Scan(&status, &pinned)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBetNotFound
	}
	if err != nil {
		return err
	}
	if status != StatusActive || pinned != 0 {
		return ErrInvalidTransition
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE wagers SET beacon_round=$1, updated_at=NOW() WHERE id=$2`, int64(round), id); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkSettling é o claim de liquidação: o FOR UPDATE do transition garante
// que só uma instância (API ou worker) ganha o ACTIVE -> SETTLING, mesmo com
// os dois processos compartilhando o banco.
func (p *Postgres) MarkSettling(ctx context.Context, id string) error {
	return p.transition(ctx, id, StatusSettling, func(tx *sql.Tx, cur string) error {
		if cur != StatusActive {
			return ErrInvalidTransition
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE wagers SET status=$1, updated_at=NOW() WHERE id=$2`,
			StatusSettling, id)
		return err
	})
}

func (p *Postgres) ReleaseSettling(ctx context.Context, id string) error {
	return p.transition(ctx, id, StatusActive, func(tx *sql.Tx, cur string) error {
		if cur != StatusSettling {
			return ErrInvalidTransition
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE wagers SET status=$1, updated_at=NOW() WHERE id=$2`,
			StatusActive, id)
		return err
	})
}

func (p *Postgres) MarkSettled(ctx context.Context, id string, s Settlement) error {
	return p.transition(ctx, id, StatusSettled, func(tx *sql.Tx, cur string) error {
		if cur != StatusSettling {
			return ErrInvalidTransition
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE wagers SET status=$1, beacon_round=$2, randomness=$3,
			       roll_a=$4, roll_b=$5, winner=$6, tx_hash=$7,
			       settled_at=$8, updated_at=NOW()
			WHERE id=$9`,
			StatusSettled, int64(s.BeaconRound), s.Randomness,
			s.RollA, s.RollB, s.Winner, s.TxHash, s.SettledAt, id)
		return err
	})
}

func (p *Postgres) MarkCanceled(ctx context.Context, id, reason string) error {
	return p.transition(ctx, id, StatusCanceled, func(tx *sql.Tx, cur string) error {
		if cur != StatusPending && cur != StatusActive {
			return ErrInvalidTransition
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE wagers SET status=$1, reason=$2, updated_at=NOW() WHERE id=$3`,
			StatusCanceled, reason, id)
		return err
	})
}

func (p *Postgres) MarkFaulted(ctx context.Context, id, reason string) error {
	return p.transition(ctx, id, StatusFaulted, func(tx *sql.Tx, cur string) error {
		if cur != StatusSettling {
			return ErrInvalidTransition
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE wagers SET status=$1, reason=$2, updated_at=NOW() WHERE id=$3`,
			StatusFaulted, reason, id)
		return err
	})
}

// transition centraliza o padrão lock -> valida origem -> muda -> audita
func (p *Postgres) transition(ctx context.Context, id, newStatus string, apply func(tx *sql.Tx, cur string) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cur string
	err = tx.QueryRowContext(ctx, `SELECT status FROM wagers WHERE id=$1 FOR UPDATE`, id).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBetNotFound
	}
	if err != nil {
		return err
	}

	if err = apply(tx, cur); err != nil {
		return err
	}

	// Trilha de auditoria das transições
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO wager_transitions (bet_id, old_status, new_status, created_at)
		VALUES ($1,$2,$3,NOW())`, id, cur, newStatus); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *Postgres) ListByStatus(ctx context.Context, status string) ([]*Bet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, participant_a, COALESCE(participant_b,''), stake_cents, game_class,
		       status, COALESCE(beacon_round,0), COALESCE(randomness,''),
		       COALESCE(roll_a,0), COALESCE(roll_b,0), COALESCE(winner,''),
		       COALESCE(tx_hash,''), COALESCE(reason,''), created_at, settled_at
		FROM wagers WHERE status=$1 ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBets(rows)
}

func (p *Postgres) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Bet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, participant_a, COALESCE(participant_b,''), stake_cents, game_class,
		       status, COALESCE(beacon_round,0), COALESCE(randomness,''),
		       COALESCE(roll_a,0), COALESCE(roll_b,0), COALESCE(winner,''),
		       COALESCE(tx_hash,''), COALESCE(reason,''), created_at, settled_at
		FROM wagers WHERE status=$1 AND created_at < $2 ORDER BY created_at`,
		StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBets(rows)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanBet(r rowScanner) (*Bet, error) {
	var b Bet
	var round int64
	var settledAt sql.NullTime
	err := r.Scan(&b.ID, &b.ParticipantA, &b.ParticipantB, &b.StakeCents, &b.GameClass,
		&b.Status, &round, &b.Randomness, &b.RollA, &b.RollB, &b.Winner,
		&b.TxHash, &b.Reason, &b.CreatedAt, &settledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBetNotFound
	}
	if err != nil {
		return nil, err
	}
	b.BeaconRound = uint64(round)
	if settledAt.Valid {
		b.SettledAt = &settledAt.Time
	}
	return &b, nil
}

func collectBets(rows *sql.Rows) ([]*Bet, error) {
	var out []*Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
