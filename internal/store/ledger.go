package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = "id, user_id, type, amount, note, created_at"

// Adjust appends a transaction and moves the balance by in.Amount, both in
// one database transaction. It does not check funds; a debit that would take
// the balance below zero is refused by the schema and reported as
// ErrInsufficientBalance.
func (s *Store) Adjust(ctx context.Context, in AdjustInput) (int64, error) {
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = adjustTx(ctx, tx, in)
		return err
	})
	return balance, err
}

// RecordDeposit credits a processed deposit.
func (s *Store) RecordDeposit(ctx context.Context, userID uuid.UUID, amount int64, note string) (int64, error) {
	return s.credit(ctx, AdjustInput{UserID: userID, Amount: amount, Type: TxDeposit, Note: noteOr(note, "Deposit")})
}

// RecordWithdrawal debits a processed withdrawal.
func (s *Store) RecordWithdrawal(ctx context.Context, userID uuid.UUID, amount int64, note string) (int64, error) {
	return s.debit(ctx, AdjustInput{UserID: userID, Amount: amount, Type: TxWithdraw, Note: noteOr(note, "Withdrawal")})
}

func (s *Store) AdminCredit(ctx context.Context, userID uuid.UUID, amount int64, note string) (int64, error) {
	return s.credit(ctx, AdjustInput{UserID: userID, Amount: amount, Type: TxAdmin, Note: prefixNote("Admin credit", note)})
}

func (s *Store) AdminDebit(ctx context.Context, userID uuid.UUID, amount int64, note string) (int64, error) {
	return s.debit(ctx, AdjustInput{UserID: userID, Amount: amount, Type: TxAdmin, Note: prefixNote("Admin debit", note)})
}

// Balance returns 0 for a user without a balance row.
func (s *Store) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, "SELECT balance FROM balances WHERE user_id = $1", userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

// Transactions lists a user's ledger, most recent first.
func (s *Store) Transactions(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]Transaction, 0)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Note, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// AllTransactions lists the ledger of every user, most recent first.
func (s *Store) AllTransactions(ctx context.Context, limit int) ([]TransactionView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.user_id, t.type, t.amount, t.note, t.created_at, u.telegram_id, u.username
		FROM transactions t
		JOIN users u ON u.id = t.user_id
		ORDER BY t.created_at DESC, t.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]TransactionView, 0)
	for rows.Next() {
		var t TransactionView
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Note, &t.CreatedAt, &t.TelegramID, &t.Username); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *Store) credit(ctx context.Context, in AdjustInput) (int64, error) {
	if in.Amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return s.Adjust(ctx, in)
}

func (s *Store) debit(ctx context.Context, in AdjustInput) (int64, error) {
	if in.Amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = debitTx(ctx, tx, in)
		return err
	})
	return balance, err
}

// deductForBet takes a bet stake inside the caller's transaction.
func deductForBet(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (int64, error) {
	return debitTx(ctx, tx, AdjustInput{
		UserID: userID,
		Amount: amount,
		Type:   TxBet,
		Note:   fmt.Sprintf("Bet placed: %d", amount),
	})
}

// creditWinnings pays a round winner inside the caller's transaction.
func creditWinnings(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (int64, error) {
	return adjustTx(ctx, tx, AdjustInput{
		UserID: userID,
		Amount: amount,
		Type:   TxWin,
		Note:   fmt.Sprintf("Lottery winnings: %d", amount),
	})
}

// debitTx locks the balance row, checks funds and records -in.Amount.
func debitTx(ctx context.Context, tx pgx.Tx, in AdjustInput) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, "SELECT balance FROM balances WHERE user_id = $1 FOR UPDATE", in.UserID).Scan(&balance)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if balance < in.Amount {
		return 0, ErrInsufficientBalance
	}

	in.Amount = -in.Amount
	return adjustTx(ctx, tx, in)
}

func adjustTx(ctx context.Context, tx pgx.Tx, in AdjustInput) (int64, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, note)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), in.UserID, in.Type, in.Amount, nullableText(in.Note))
	if err != nil {
		if pgErrorCode(err) == "23503" {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		INSERT INTO balances (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = balances.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance
	`, in.UserID, in.Amount).Scan(&balance)
	if err != nil {
		if isCheckViolation(err) {
			return 0, ErrInsufficientBalance
		}
		return 0, err
	}
	return balance, nil
}

func noteOr(note, fallback string) string {
	if note == "" {
		return fallback
	}
	return note
}

func prefixNote(prefix, note string) string {
	if note == "" {
		return prefix
	}
	return prefix + ": " + note
}
