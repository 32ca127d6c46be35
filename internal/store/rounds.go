package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const roundColumns = "id, status, total_pool, winner_user_id, payout, created_at, ended_at"

// ensureAttempts bounds the select/insert loop that finds or opens the active
// round while a concurrent close is swapping it.
const ensureAttempts = 3

// EnsureActiveRound returns the ACTIVE round, opening one at now if none
// exists. Concurrent callers converge on the same round.
func (s *Store) EnsureActiveRound(ctx context.Context, now time.Time) (Round, error) {
	for i := 0; i < ensureAttempts; i++ {
		r, err := scanRound(s.pool.QueryRow(ctx, "SELECT "+roundColumns+" FROM rounds WHERE status = $1", RoundActive))
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Round{}, err
		}
		if err := insertActiveRound(ctx, s.pool, now); err != nil {
			return Round{}, err
		}
	}
	return Round{}, ErrNotFound
}

func (s *Store) RoundByID(ctx context.Context, id uuid.UUID) (Round, error) {
	return scanRound(s.pool.QueryRow(ctx, "SELECT "+roundColumns+" FROM rounds WHERE id = $1", id))
}

// RoundBets lists a round's bets, most recent first.
func (s *Store) RoundBets(ctx context.Context, roundID uuid.UUID) ([]BetView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.user_id, b.round_id, b.amount, b.created_at, u.telegram_id, u.username
		FROM bets b
		JOIN users u ON u.id = b.user_id
		WHERE b.round_id = $1
		ORDER BY b.created_at DESC, b.id
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bets := make([]BetView, 0)
	for rows.Next() {
		var b BetView
		if err := rows.Scan(&b.ID, &b.UserID, &b.RoundID, &b.Amount, &b.CreatedAt, &b.TelegramID, &b.Username); err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// PlaceBet deducts the stake and records the bet against the active round in
// one transaction. The round row is locked before the balance row.
func (s *Store) PlaceBet(ctx context.Context, in PlaceBetInput) (Bet, error) {
	if in.Amount <= 0 {
		return Bet{}, ErrInvalidAmount
	}

	var bet Bet
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		round, err := lockActiveRound(ctx, tx, in.Now)
		if err != nil {
			return err
		}

		if _, err := deductForBet(ctx, tx, in.UserID, in.Amount); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO bets (id, user_id, round_id, amount)
			VALUES ($1, $2, $3, $4)
			RETURNING id, user_id, round_id, amount, created_at
		`, uuid.New(), in.UserID, round.ID, in.Amount).Scan(
			&bet.ID,
			&bet.UserID,
			&bet.RoundID,
			&bet.Amount,
			&bet.CreatedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, "UPDATE rounds SET total_pool = total_pool + $1 WHERE id = $2", in.Amount, round.ID)
		return err
	})
	if err != nil {
		return Bet{}, err
	}
	return bet, nil
}

// FinishRound moves an ACTIVE round to FINISHED, pays the drawn winner and
// opens the next round, all in one transaction. It returns ErrRoundNotActive
// when the round was already finished and ErrRoundNotDue when the deadline
// has not passed and in.Force is false; neither changes anything.
func (s *Store) FinishRound(ctx context.Context, in FinishRoundInput) (RoundResult, error) {
	var res RoundResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		round, err := scanRound(tx.QueryRow(ctx, "SELECT "+roundColumns+" FROM rounds WHERE id = $1 FOR UPDATE", in.RoundID))
		if err != nil {
			return err
		}
		if round.Status != RoundActive {
			return ErrRoundNotActive
		}
		if !in.Force && in.Now.Before(round.CreatedAt.Add(in.Duration)) {
			return ErrRoundNotDue
		}

		bets, err := roundBetsForDraw(ctx, tx, round.ID)
		if err != nil {
			return err
		}

		round.Status = RoundFinished
		ended := in.Now
		round.EndedAt = &ended

		if len(bets) > 0 {
			idx := in.Pick(len(bets))
			if idx < 0 || idx >= len(bets) {
				idx = 0
			}
			won := bets[idx]
			winnings := in.Payout(round.TotalPool)

			if winnings > 0 {
				if _, err := creditWinnings(ctx, tx, won.UserID, winnings); err != nil {
					return err
				}
			}

			round.WinnerUserID = &won.UserID
			round.Payout = winnings
			res.Winner = &Winner{
				UserID:     won.UserID,
				TelegramID: won.TelegramID,
				Username:   won.Username,
				BetID:      won.ID,
				Winnings:   winnings,
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE rounds
			SET status = $1, winner_user_id = $2, payout = $3, ended_at = $4
			WHERE id = $5
		`, round.Status, round.WinnerUserID, round.Payout, round.EndedAt, round.ID)
		if err != nil {
			return err
		}

		next, err := openRound(ctx, tx, in.Now)
		if err != nil {
			return err
		}

		res.Round = round
		res.BetCount = len(bets)
		res.Next = next
		return nil
	})
	if err != nil {
		return RoundResult{}, err
	}
	return res, nil
}

// FinishedRounds lists FINISHED rounds, most recently ended first.
func (s *Store) FinishedRounds(ctx context.Context, limit int) ([]RoundSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.status, r.total_pool, r.winner_user_id, r.payout, r.created_at, r.ended_at,
			(SELECT COUNT(*) FROM bets b WHERE b.round_id = r.id),
			u.username
		FROM rounds r
		LEFT JOIN users u ON u.id = r.winner_user_id
		WHERE r.status = $1
		ORDER BY r.ended_at DESC, r.id
		LIMIT $2
	`, RoundFinished, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rounds := make([]RoundSummary, 0)
	for rows.Next() {
		var r RoundSummary
		err := rows.Scan(
			&r.ID,
			&r.Status,
			&r.TotalPool,
			&r.WinnerUserID,
			&r.Payout,
			&r.CreatedAt,
			&r.EndedAt,
			&r.BetCount,
			&r.WinnerUsername,
		)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// lockActiveRound locks the ACTIVE round row for the rest of tx, opening a
// round when there is none.
func lockActiveRound(ctx context.Context, tx pgx.Tx, now time.Time) (Round, error) {
	for i := 0; i < ensureAttempts; i++ {
		r, err := scanRound(tx.QueryRow(ctx, "SELECT "+roundColumns+" FROM rounds WHERE status = $1 FOR UPDATE", RoundActive))
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Round{}, err
		}
		if err := insertActiveRound(ctx, tx, now); err != nil {
			return Round{}, err
		}
	}
	return Round{}, ErrNotFound
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// insertActiveRound opens a round unless another ACTIVE one already exists.
func insertActiveRound(ctx context.Context, db execer, now time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO rounds (id, status, total_pool, created_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (status) WHERE status = 'ACTIVE' DO NOTHING
	`, uuid.New(), RoundActive, now)
	return err
}

// openRound inserts the successor round; the unique index on ACTIVE rounds
// rejects it if another one appeared.
func openRound(ctx context.Context, tx pgx.Tx, now time.Time) (Round, error) {
	return scanRound(tx.QueryRow(ctx, `
		INSERT INTO rounds (id, status, total_pool, created_at)
		VALUES ($1, $2, 0, $3)
		RETURNING `+roundColumns,
		uuid.New(), RoundActive, now,
	))
}

// roundBetsForDraw returns bets in a stable order so a pick index is
// reproducible.
func roundBetsForDraw(ctx context.Context, tx pgx.Tx, roundID uuid.UUID) ([]BetView, error) {
	rows, err := tx.Query(ctx, `
		SELECT b.id, b.user_id, b.round_id, b.amount, b.created_at, u.telegram_id, u.username
		FROM bets b
		JOIN users u ON u.id = b.user_id
		WHERE b.round_id = $1
		ORDER BY b.created_at, b.id
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bets := make([]BetView, 0)
	for rows.Next() {
		var b BetView
		if err := rows.Scan(&b.ID, &b.UserID, &b.RoundID, &b.Amount, &b.CreatedAt, &b.TelegramID, &b.Username); err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func scanRound(row pgx.Row) (Round, error) {
	var r Round
	err := row.Scan(&r.ID, &r.Status, &r.TotalPool, &r.WinnerUserID, &r.Payout, &r.CreatedAt, &r.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Round{}, ErrNotFound
		}
		return Round{}, err
	}
	return r, nil
}
