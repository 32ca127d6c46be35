package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"kyatlotto/internal/store"
)

const (
	profileTransactions = 20
	profileBets         = 10
	walletTransactions  = 50
)

type telegramAuthRequest struct {
	InitData string `json:"initData"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type userResponse struct {
	ID         uuid.UUID `json:"id"`
	TelegramID string    `json:"telegramId"`
	Username   *string   `json:"username"`
}

type authResponse struct {
	Success   bool         `json:"success"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

type transactionResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Note      *string   `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

type betRoundResponse struct {
	Status  string     `json:"status"`
	EndedAt *time.Time `json:"endedAt"`
}

type userBetResponse struct {
	ID        uuid.UUID        `json:"id"`
	RoundID   uuid.UUID        `json:"roundId"`
	Amount    int64            `json:"amount"`
	CreatedAt time.Time        `json:"createdAt"`
	Round     betRoundResponse `json:"round"`
}

type profileResponse struct {
	ID           uuid.UUID             `json:"id"`
	TelegramID   string                `json:"telegramId"`
	Username     *string               `json:"username"`
	Balance      int64                 `json:"balance"`
	Transactions []transactionResponse `json:"transactions"`
	RecentBets   []userBetResponse     `json:"recentBets"`
	CreatedAt    time.Time             `json:"createdAt"`
}

type walletRequestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Amount  int64  `json:"amount"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
}

const healthPingTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{
		Status:    "ok",
		Database:  "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.started).Seconds(),
	}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logEvent("health_db_unavailable", map[string]any{
			"error": err.Error(),
		})
		res.Status = "degraded"
		res.Database = "unavailable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

func (s *Server) handleTelegramAuth(w http.ResponseWriter, r *http.Request) {
	var req telegramAuthRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.InitData) == "" {
		s.logEvent("auth_failed", map[string]any{
			"reason": "invalid_request",
		})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	res, err := s.auth.Login(r.Context(), req.InitData)
	if err != nil {
		code := s.writeStoreError(w, "telegram auth", err)
		s.logEvent("auth_failed", map[string]any{
			"reason": code,
			"detail": err.Error(),
		})
		return
	}

	s.logEvent("auth_succeeded", map[string]any{
		"user_id":     res.User.ID.String(),
		"telegram_id": res.User.TelegramID,
	})
	writeJSON(w, http.StatusOK, authResponse{
		Success:   true,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      toUserResponse(res.User),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	details, err := s.store.UserDetails(r.Context(), sess.UserID, profileTransactions, profileBets)
	if err != nil {
		s.writeStoreError(w, "get profile", err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		ID:           details.ID,
		TelegramID:   details.TelegramID,
		Username:     details.Username,
		Balance:      details.Balance,
		Transactions: toTransactionResponses(details.Transactions),
		RecentBets:   toUserBetResponses(details.Bets),
		CreatedAt:    details.CreatedAt,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.store.Balance(r.Context(), sessionFrom(r.Context()).UserID)
	if err != nil {
		s.writeStoreError(w, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.store.Transactions(r.Context(), sessionFrom(r.Context()).UserID, walletTransactions)
	if err != nil {
		s.writeStoreError(w, "list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": toTransactionResponses(txs)})
}

// handleDepositRequest records nothing: an operator credits the deposit
// through the admin API once the payment arrives.
func (s *Server) handleDepositRequest(w http.ResponseWriter, r *http.Request) {
	user, amount, ok := s.walletRequest(w, r, "deposit_request_failed")
	if !ok {
		return
	}

	s.notifier.DepositRequested(r.Context(), user, amount)
	s.logEvent("deposit_requested", map[string]any{
		"user_id": user.ID.String(),
		"amount":  amount,
	})
	writeJSON(w, http.StatusOK, walletRequestResponse{
		Success: true,
		Message: "Deposit request submitted. Please contact support to complete the deposit.",
		Amount:  amount,
	})
}

func (s *Server) handleWithdrawRequest(w http.ResponseWriter, r *http.Request) {
	user, amount, ok := s.walletRequest(w, r, "withdraw_request_failed")
	if !ok {
		return
	}

	balance, err := s.store.Balance(r.Context(), user.ID)
	if err != nil {
		s.writeStoreError(w, "withdraw request", err)
		return
	}
	if balance < amount {
		s.logEvent("withdraw_request_failed", map[string]any{
			"reason":  "insufficient_balance",
			"user_id": user.ID.String(),
			"amount":  amount,
			"balance": balance,
		})
		writeError(w, http.StatusConflict, "insufficient_balance")
		return
	}

	s.notifier.WithdrawRequested(r.Context(), user, amount)
	s.logEvent("withdraw_requested", map[string]any{
		"user_id": user.ID.String(),
		"amount":  amount,
	})
	writeJSON(w, http.StatusOK, walletRequestResponse{
		Success: true,
		Message: "Withdrawal request submitted. Please contact support to complete the withdrawal.",
		Amount:  amount,
	})
}

// walletRequest decodes {amount} and loads the session user. It writes the
// error response itself when ok is false.
func (s *Server) walletRequest(w http.ResponseWriter, r *http.Request, failEvent string) (store.User, int64, bool) {
	sess := sessionFrom(r.Context())

	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEvent(failEvent, map[string]any{
			"reason":  "invalid_request",
			"user_id": sess.UserID.String(),
		})
		writeError(w, http.StatusBadRequest, "invalid_request")
		return store.User{}, 0, false
	}
	if req.Amount <= 0 {
		s.logEvent(failEvent, map[string]any{
			"reason":  "invalid_amount",
			"user_id": sess.UserID.String(),
			"amount":  req.Amount,
		})
		writeError(w, http.StatusBadRequest, "invalid_amount")
		return store.User{}, 0, false
	}

	user, err := s.store.UserByID(r.Context(), sess.UserID)
	if err != nil {
		s.writeStoreError(w, "load user", err)
		return store.User{}, 0, false
	}
	return user, req.Amount, true
}

func toUserResponse(u store.User) userResponse {
	return userResponse{
		ID:         u.ID,
		TelegramID: u.TelegramID,
		Username:   u.Username,
	}
}

func toTransactionResponse(t store.Transaction) transactionResponse {
	return transactionResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Type:      string(t.Type),
		Amount:    t.Amount,
		Note:      t.Note,
		CreatedAt: t.CreatedAt,
	}
}

func toTransactionResponses(txs []store.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	return out
}

func toUserBetResponses(bets []store.BetWithRound) []userBetResponse {
	out := make([]userBetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, userBetResponse{
			ID:        b.ID,
			RoundID:   b.RoundID,
			Amount:    b.Amount,
			CreatedAt: b.CreatedAt,
			Round: betRoundResponse{
				Status:  string(b.RoundStatus),
				EndedAt: b.RoundEnded,
			},
		})
	}
	return out
}
