package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	adminTransactionLimit = 100
	adminUserTransactions = 20
	adminUserBets         = 10
)

type adjustKind string

const (
	adjustCredit   adjustKind = "credit"
	adjustDebit    adjustKind = "debit"
	adjustDeposit  adjustKind = "deposit"
	adjustWithdraw adjustKind = "withdraw"
)

type adminAdjustRequest struct {
	TelegramID string `json:"telegramId"`
	Amount     int64  `json:"amount"`
	Note       string `json:"note"`
}

type adminAdjustResponse struct {
	Success    bool      `json:"success"`
	UserID     uuid.UUID `json:"userId"`
	TelegramID string    `json:"telegramId"`
	Amount     int64     `json:"amount"`
	NewBalance int64     `json:"newBalance"`
}

type adminTransactionUser struct {
	TelegramID string  `json:"telegramId"`
	Username   *string `json:"username"`
}

type adminTransactionResponse struct {
	transactionResponse
	User adminTransactionUser `json:"user"`
}

type adminUserResponse struct {
	ID           uuid.UUID             `json:"id"`
	TelegramID   string                `json:"telegramId"`
	Username     *string               `json:"username"`
	Balance      int64                 `json:"balance"`
	Transactions []transactionResponse `json:"transactions"`
	Bets         []userBetResponse     `json:"bets"`
	CreatedAt    time.Time             `json:"createdAt"`
}

type closeRoundResponse struct {
	Success     bool                   `json:"success"`
	RoundID     uuid.UUID              `json:"roundId"`
	TotalPool   int64                  `json:"totalPool"`
	BetCount    int                    `json:"betCount"`
	Winner      *historyWinnerResponse `json:"winner"`
	NextRoundID uuid.UUID              `json:"nextRoundId"`
}

func (s *Server) adjustFunc(kind adjustKind) func(ctx context.Context, userID uuid.UUID, amount int64, note string) (int64, error) {
	switch kind {
	case adjustDebit:
		return s.store.AdminDebit
	case adjustDeposit:
		return s.store.RecordDeposit
	case adjustWithdraw:
		return s.store.RecordWithdrawal
	default:
		return s.store.AdminCredit
	}
}

func (s *Server) handleAdminAdjust(kind adjustKind) http.HandlerFunc {
	apply := s.adjustFunc(kind)

	return func(w http.ResponseWriter, r *http.Request) {
		var req adminAdjustRequest
		if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.TelegramID) == "" {
			s.logEvent("admin_adjust_failed", map[string]any{
				"kind":   kind,
				"reason": "invalid_request",
			})
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		telegramID := strings.TrimSpace(req.TelegramID)
		if req.Amount <= 0 {
			s.logEvent("admin_adjust_failed", map[string]any{
				"kind":        kind,
				"reason":      "invalid_amount",
				"telegram_id": telegramID,
				"amount":      req.Amount,
			})
			writeError(w, http.StatusBadRequest, "invalid_amount")
			return
		}

		user, err := s.store.UserByTelegramID(r.Context(), telegramID)
		if err == nil {
			var balance int64
			balance, err = apply(r.Context(), user.ID, req.Amount, strings.TrimSpace(req.Note))
			if err == nil {
				s.logEvent("admin_adjust", map[string]any{
					"kind":        kind,
					"user_id":     user.ID.String(),
					"telegram_id": telegramID,
					"amount":      req.Amount,
					"balance":     balance,
				})
				writeJSON(w, http.StatusOK, adminAdjustResponse{
					Success:    true,
					UserID:     user.ID,
					TelegramID: telegramID,
					Amount:     req.Amount,
					NewBalance: balance,
				})
				return
			}
		}

		code := s.writeStoreError(w, "admin "+string(kind), err)
		s.logEvent("admin_adjust_failed", map[string]any{
			"kind":        kind,
			"reason":      code,
			"telegram_id": telegramID,
			"amount":      req.Amount,
		})
	}
}

func (s *Server) handleAdminTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.store.AllTransactions(r.Context(), adminTransactionLimit)
	if err != nil {
		s.writeStoreError(w, "admin transactions", err)
		return
	}

	out := make([]adminTransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, adminTransactionResponse{
			transactionResponse: toTransactionResponse(t.Transaction),
			User: adminTransactionUser{
				TelegramID: t.TelegramID,
				Username:   t.Username,
			},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	telegramID := strings.TrimSpace(r.PathValue("telegramId"))
	if telegramID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.store.UserByTelegramID(r.Context(), telegramID)
	if err != nil {
		s.writeStoreError(w, "admin user", err)
		return
	}
	details, err := s.store.UserDetails(r.Context(), user.ID, adminUserTransactions, adminUserBets)
	if err != nil {
		s.writeStoreError(w, "admin user", err)
		return
	}

	writeJSON(w, http.StatusOK, adminUserResponse{
		ID:           details.ID,
		TelegramID:   details.TelegramID,
		Username:     details.Username,
		Balance:      details.Balance,
		Transactions: toTransactionResponses(details.Transactions),
		Bets:         toUserBetResponses(details.Bets),
		CreatedAt:    details.CreatedAt,
	})
}

func (s *Server) handleAdminCloseRound(w http.ResponseWriter, r *http.Request) {
	res, err := s.lottery.CloseActive(r.Context())
	if err != nil {
		s.writeStoreError(w, "close round", err)
		return
	}
	if res == nil {
		// Someone else closed it between our read and the lock.
		writeError(w, http.StatusConflict, "round_not_active")
		return
	}

	out := closeRoundResponse{
		Success:     true,
		RoundID:     res.Round.ID,
		TotalPool:   res.Round.TotalPool,
		BetCount:    res.BetCount,
		NextRoundID: res.Next.ID,
	}
	if res.Winner != nil {
		out.Winner = &historyWinnerResponse{
			UserID:   res.Winner.UserID,
			Username: res.Winner.Username,
			Winnings: res.Winner.Winnings,
		}
	}
	s.logEvent("admin_round_closed", map[string]any{
		"round_id":  res.Round.ID.String(),
		"bet_count": res.BetCount,
	})
	writeJSON(w, http.StatusOK, out)
}
