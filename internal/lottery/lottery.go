// Package lottery runs the betting rounds: it exposes the active round, takes
// bets, closes rounds at their deadline and draws the winner.
package lottery

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"kyatlotto/internal/eventlog"
	"kyatlotto/internal/store"
)

const (
	DefaultRoundDuration = 60 * time.Minute
	DefaultMinBet        = 10
	DefaultPayoutPercent = 90
	DefaultHistoryLimit  = 10
	MaxHistoryLimit      = 100
)

var ErrBelowMinimum = errors.New("bet below minimum")

// Store is the persistence the lottery needs.
type Store interface {
	EnsureActiveRound(ctx context.Context, now time.Time) (store.Round, error)
	RoundBets(ctx context.Context, roundID uuid.UUID) ([]store.BetView, error)
	PlaceBet(ctx context.Context, in store.PlaceBetInput) (store.Bet, error)
	FinishRound(ctx context.Context, in store.FinishRoundInput) (store.RoundResult, error)
	FinishedRounds(ctx context.Context, limit int) ([]store.RoundSummary, error)
}

// Notifier is told about every finished round after it commits.
type Notifier interface {
	RoundFinished(ctx context.Context, res store.RoundResult)
}

type nopNotifier struct{}

func (nopNotifier) RoundFinished(context.Context, store.RoundResult) {}

type Config struct {
	RoundDuration time.Duration
	MinBet        int64
	PayoutPercent int64
}

func (c Config) withDefaults() Config {
	if c.RoundDuration <= 0 {
		c.RoundDuration = DefaultRoundDuration
	}
	if c.MinBet <= 0 {
		c.MinBet = DefaultMinBet
	}
	if c.PayoutPercent <= 0 || c.PayoutPercent > 100 {
		c.PayoutPercent = DefaultPayoutPercent
	}
	return c
}

type Service struct {
	store    Store
	cfg      Config
	notifier Notifier
	logger   eventlog.Logger
	now      func() time.Time
	pick     func(n int) int
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPicker replaces the uniform random winner draw.
func WithPicker(pick func(n int) int) Option {
	return func(s *Service) { s.pick = pick }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func NewService(st Store, cfg Config, logger eventlog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		cfg:      cfg.withDefaults(),
		notifier: nopNotifier{},
		logger:   eventlog.OrNop(logger),
		now:      time.Now,
		pick:     rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() Config {
	return s.cfg
}

// Payout is floor(pool * percent / 100).
func Payout(pool, percent int64) int64 {
	if pool <= 0 {
		return 0
	}
	return pool * percent / 100
}

type BetEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Username  *string
	Amount    int64
	CreatedAt time.Time
}

type Snapshot struct {
	ID        uuid.UUID
	TotalPool int64
	BetCount  int
	EndTime   time.Time
	TimeLeft  time.Duration
	Bets      []BetEntry
}

// ActiveRound returns the current round, opening one if none exists.
func (s *Service) ActiveRound(ctx context.Context) (Snapshot, error) {
	now := s.now()
	round, err := s.store.EnsureActiveRound(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}

	bets, err := s.store.RoundBets(ctx, round.ID)
	if err != nil {
		return Snapshot{}, err
	}

	end := round.CreatedAt.Add(s.cfg.RoundDuration)
	left := end.Sub(now)
	if left < 0 {
		left = 0
	}

	entries := make([]BetEntry, 0, len(bets))
	for _, b := range bets {
		entries = append(entries, BetEntry{
			ID:        b.ID,
			UserID:    b.UserID,
			Username:  b.Username,
			Amount:    b.Amount,
			CreatedAt: b.CreatedAt,
		})
	}

	return Snapshot{
		ID:        round.ID,
		TotalPool: round.TotalPool,
		BetCount:  len(bets),
		EndTime:   end,
		TimeLeft:  left,
		Bets:      entries,
	}, nil
}

// PlaceBet stakes amount from the user's balance on the active round.
func (s *Service) PlaceBet(ctx context.Context, userID uuid.UUID, amount int64) (store.Bet, error) {
	if amount <= 0 {
		return store.Bet{}, store.ErrInvalidAmount
	}
	if amount < s.cfg.MinBet {
		return store.Bet{}, ErrBelowMinimum
	}

	bet, err := s.store.PlaceBet(ctx, store.PlaceBetInput{
		UserID: userID,
		Amount: amount,
		Now:    s.now(),
	})
	if err != nil {
		return store.Bet{}, err
	}

	betsPlaced.Inc()
	betVolume.Add(float64(amount))
	return bet, nil
}

// Advance closes the active round if its deadline has passed. It returns nil
// when nothing was closed: a round that is not due, or that another caller
// already closed, is not an error.
func (s *Service) Advance(ctx context.Context) (*store.RoundResult, error) {
	return s.finishActive(ctx, false)
}

// CloseActive closes the active round now, regardless of its deadline.
func (s *Service) CloseActive(ctx context.Context) (*store.RoundResult, error) {
	return s.finishActive(ctx, true)
}

func (s *Service) finishActive(ctx context.Context, force bool) (*store.RoundResult, error) {
	now := s.now()
	round, err := s.store.EnsureActiveRound(ctx, now)
	if err != nil {
		return nil, err
	}
	if !force && now.Before(round.CreatedAt.Add(s.cfg.RoundDuration)) {
		return nil, nil
	}

	res, err := s.store.FinishRound(ctx, store.FinishRoundInput{
		RoundID:  round.ID,
		Now:      now,
		Duration: s.cfg.RoundDuration,
		Force:    force,
		Pick:     s.pick,
		Payout: func(pool int64) int64 {
			return Payout(pool, s.cfg.PayoutPercent)
		},
	})
	if err != nil {
		if errors.Is(err, store.ErrRoundNotActive) || errors.Is(err, store.ErrRoundNotDue) {
			return nil, nil
		}
		return nil, err
	}

	fields := map[string]any{
		"round_id":      res.Round.ID.String(),
		"total_pool":    res.Round.TotalPool,
		"bet_count":     res.BetCount,
		"next_round_id": res.Next.ID.String(),
		"forced":        force,
	}
	if res.Winner != nil {
		fields["winner_user_id"] = res.Winner.UserID.String()
		fields["winnings"] = res.Winner.Winnings
		roundsFinished.WithLabelValues("winner").Inc()
		payoutVolume.Add(float64(res.Winner.Winnings))
	} else {
		roundsFinished.WithLabelValues("empty").Inc()
	}
	eventlog.Event(s.logger, "round_finished", fields)

	s.notifier.RoundFinished(ctx, res)
	return &res, nil
}

type HistoryEntry struct {
	ID        uuid.UUID
	TotalPool int64
	BetCount  int
	EndedAt   *time.Time
	Winner    *HistoryWinner
}

type HistoryWinner struct {
	UserID   uuid.UUID
	Username *string
	Winnings int64
}

// History lists finished rounds, most recent first.
func (s *Service) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rounds, err := s.store.FinishedRounds(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]HistoryEntry, 0, len(rounds))
	for _, r := range rounds {
		e := HistoryEntry{
			ID:        r.ID,
			TotalPool: r.TotalPool,
			BetCount:  r.BetCount,
			EndedAt:   r.EndedAt,
		}
		if r.WinnerUserID != nil {
			e.Winner = &HistoryWinner{
				UserID:   *r.WinnerUserID,
				Username: r.WinnerUsername,
				Winnings: r.Payout,
			}
		}
		out = append(out, e)
	}
	return out, nil
}
