package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = "id, telegram_id, username, created_at"

// UpsertUser creates the user for telegramID or refreshes its username, and
// makes sure a balance row exists. An existing balance is never reset.
func (s *Store) UpsertUser(ctx context.Context, telegramID string, username string) (User, error) {
	var u User
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (id, telegram_id, username)
			VALUES ($1, $2, $3)
			ON CONFLICT (telegram_id) DO UPDATE SET username = COALESCE(EXCLUDED.username, users.username)
			RETURNING `+userColumns,
			uuid.New(), telegramID, nullableText(username),
		).Scan(&u.ID, &u.TelegramID, &u.Username, &u.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO balances (user_id, balance)
			VALUES ($1, 0)
			ON CONFLICT (user_id) DO NOTHING
		`, u.ID)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (s *Store) UserByTelegramID(ctx context.Context, telegramID string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE telegram_id = $1", telegramID))
}

// UserDetails loads the user with its balance, recent transactions and
// recent bets.
func (s *Store) UserDetails(ctx context.Context, id uuid.UUID, txLimit, betLimit int) (UserDetails, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return UserDetails{}, err
	}

	balance, err := s.Balance(ctx, id)
	if err != nil {
		return UserDetails{}, err
	}

	txs, err := s.Transactions(ctx, id, txLimit)
	if err != nil {
		return UserDetails{}, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.user_id, b.round_id, b.amount, b.created_at, r.status, r.ended_at
		FROM bets b
		JOIN rounds r ON r.id = b.round_id
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2
	`, id, betLimit)
	if err != nil {
		return UserDetails{}, err
	}
	defer rows.Close()

	bets := make([]BetWithRound, 0)
	for rows.Next() {
		var b BetWithRound
		if err := rows.Scan(&b.ID, &b.UserID, &b.RoundID, &b.Amount, &b.CreatedAt, &b.RoundStatus, &b.RoundEnded); err != nil {
			return UserDetails{}, err
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return UserDetails{}, err
	}

	return UserDetails{
		User:         u,
		Balance:      balance,
		Transactions: txs,
		Bets:         bets,
	}, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}
