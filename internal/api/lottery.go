package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"kyatlotto/internal/lottery"
)

type roundBetResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Username  *string   `json:"username"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

type roundResponse struct {
	ID         uuid.UUID          `json:"id"`
	TotalPool  int64              `json:"totalPool"`
	BetCount   int                `json:"betCount"`
	EndTime    time.Time          `json:"endTime"`
	TimeLeftMs int64              `json:"timeLeftMs"`
	MinBet     int64              `json:"minBet"`
	Bets       []roundBetResponse `json:"bets"`
}

type historyWinnerResponse struct {
	UserID   uuid.UUID `json:"userId"`
	Username *string   `json:"username"`
	Winnings int64     `json:"winnings"`
}

type historyResponse struct {
	ID        uuid.UUID              `json:"id"`
	TotalPool int64                  `json:"totalPool"`
	Winner    *historyWinnerResponse `json:"winner"`
	BetCount  int                    `json:"betCount"`
	EndedAt   *time.Time             `json:"endedAt"`
}

type betResponse struct {
	ID        uuid.UUID `json:"id"`
	Amount    int64     `json:"amount"`
	RoundID   uuid.UUID `json:"roundId"`
	CreatedAt time.Time `json:"createdAt"`
}

type placeBetResponse struct {
	Success bool        `json:"success"`
	Bet     betResponse `json:"bet"`
}

func (s *Server) handleActiveRound(w http.ResponseWriter, r *http.Request) {
	snap, err := s.lottery.ActiveRound(r.Context())
	if err != nil {
		s.writeStoreError(w, "get active round", err)
		return
	}

	bets := make([]roundBetResponse, 0, len(snap.Bets))
	for _, b := range snap.Bets {
		bets = append(bets, roundBetResponse{
			ID:        b.ID,
			UserID:    b.UserID,
			Username:  b.Username,
			Amount:    b.Amount,
			CreatedAt: b.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, roundResponse{
		ID:         snap.ID,
		TotalPool:  snap.TotalPool,
		BetCount:   snap.BetCount,
		EndTime:    snap.EndTime,
		TimeLeftMs: snap.TimeLeft.Milliseconds(),
		MinBet:     s.lottery.Config().MinBet,
		Bets:       bets,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := lottery.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		limit = n
	}

	entries, err := s.lottery.History(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, "round history", err)
		return
	}

	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		h := historyResponse{
			ID:        e.ID,
			TotalPool: e.TotalPool,
			BetCount:  e.BetCount,
			EndedAt:   e.EndedAt,
		}
		if e.Winner != nil {
			h.Winner = &historyWinnerResponse{
				UserID:   e.Winner.UserID,
				Username: e.Winner.Username,
				Winnings: e.Winner.Winnings,
			}
		}
		out = append(out, h)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEvent("bet_failed", map[string]any{
			"reason":  "invalid_request",
			"user_id": sess.UserID.String(),
		})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	bet, err := s.lottery.PlaceBet(r.Context(), sess.UserID, req.Amount)
	if err != nil {
		code := s.writeStoreError(w, "place bet", err)
		s.logEvent("bet_failed", map[string]any{
			"reason":  code,
			"user_id": sess.UserID.String(),
			"amount":  req.Amount,
		})
		return
	}

	s.logEvent("bet_placed", map[string]any{
		"bet_id":   bet.ID.String(),
		"round_id": bet.RoundID.String(),
		"user_id":  bet.UserID.String(),
		"amount":   bet.Amount,
	})
	writeJSON(w, http.StatusCreated, placeBetResponse{
		Success: true,
		Bet: betResponse{
			ID:        bet.ID,
			Amount:    bet.Amount,
			RoundID:   bet.RoundID,
			CreatedAt: bet.CreatedAt,
		},
	})
}
