package store

import (
	"time"

	"github.com/google/uuid"
)

type TxType string

const (
	TxDeposit  TxType = "DEPOSIT"
	TxWithdraw TxType = "WITHDRAW"
	TxBet      TxType = "BET"
	TxWin      TxType = "WIN"
	TxAdmin    TxType = "ADMIN"
)

type RoundStatus string

const (
	RoundActive   RoundStatus = "ACTIVE"
	RoundFinished RoundStatus = "FINISHED"
)

type User struct {
	ID         uuid.UUID
	TelegramID string
	Username   *string
	CreatedAt  time.Time
}

// Transaction is an immutable ledger row. Amount is signed.
type Transaction struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      TxType
	Amount    int64
	Note      *string
	CreatedAt time.Time
}

// TransactionView is a Transaction joined with its owner, for admin listings.
type TransactionView struct {
	Transaction
	TelegramID string
	Username   *string
}

type Round struct {
	ID           uuid.UUID
	Status       RoundStatus
	TotalPool    int64
	WinnerUserID *uuid.UUID
	Payout       int64
	CreatedAt    time.Time
	EndedAt      *time.Time
}

type Bet struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	RoundID   uuid.UUID
	Amount    int64
	CreatedAt time.Time
}

// BetView is a Bet with the bettor's display fields.
type BetView struct {
	Bet
	TelegramID string
	Username   *string
}

type AdjustInput struct {
	UserID uuid.UUID
	Amount int64
	Type   TxType
	Note   string
}

type PlaceBetInput struct {
	UserID uuid.UUID
	Amount int64
	Now    time.Time
}

type FinishRoundInput struct {
	RoundID  uuid.UUID
	Now      time.Time
	Duration time.Duration
	// Force closes the round even before its deadline.
	Force bool
	// Pick returns an index in [0, n) selecting the winning bet.
	Pick func(n int) int
	// Payout maps the pool to the winner's credit.
	Payout func(pool int64) int64
}

type Winner struct {
	UserID     uuid.UUID
	TelegramID string
	Username   *string
	BetID      uuid.UUID
	Winnings   int64
}

type RoundResult struct {
	Round    Round
	BetCount int
	Winner   *Winner
	Next     Round
}

// RoundSummary is a finished round as shown in history.
type RoundSummary struct {
	Round
	BetCount       int
	WinnerUsername *string
}

type UserDetails struct {
	User
	Balance      int64
	Transactions []Transaction
	Bets         []BetWithRound
}

type BetWithRound struct {
	Bet
	RoundStatus RoundStatus
	RoundEnded  *time.Time
}
