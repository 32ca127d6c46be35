package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"kyatlotto/internal/auth"
	"kyatlotto/internal/eventlog"
	"kyatlotto/internal/lottery"
	"kyatlotto/internal/store"
)

// Notifier forwards wallet requests to the operators.
type Notifier interface {
	DepositRequested(ctx context.Context, user store.User, amount int64)
	WithdrawRequested(ctx context.Context, user store.User, amount int64)
}

type nopNotifier struct{}

func (nopNotifier) DepositRequested(context.Context, store.User, int64)  {}
func (nopNotifier) WithdrawRequested(context.Context, store.User, int64) {}

type Server struct {
	store      *store.Store
	lottery    *lottery.Service
	auth       *auth.Authenticator
	adminToken string
	origins    []string
	notifier   Notifier
	logger     eventlog.Logger
	started    time.Time
}

type Option func(*Server)

// WithNotifier sets where deposit and withdrawal requests are sent.
func WithNotifier(n Notifier) Option {
	return func(s *Server) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithAllowedOrigins restricts CORS to the given origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer wires the HTTP API. An empty adminToken disables every admin
// route.
func NewServer(st *store.Store, lot *lottery.Service, authn *auth.Authenticator, adminToken string, logger eventlog.Logger, opts ...Option) *Server {
	s := &Server{
		store:      st,
		lottery:    lot,
		auth:       authn,
		adminToken: adminToken,
		notifier:   nopNotifier{},
		logger:     eventlog.OrNop(logger),
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, http.MethodGet, "/api/health", s.handleHealth)
	s.handle(mux, http.MethodPost, "/api/auth/telegram", s.handleTelegramAuth)

	s.handle(mux, http.MethodGet, "/api/users/profile", s.session(s.handleProfile))
	s.handle(mux, http.MethodGet, "/api/wallet/balance", s.session(s.handleBalance))
	s.handle(mux, http.MethodGet, "/api/wallet/transactions", s.session(s.handleTransactions))
	s.handle(mux, http.MethodPost, "/api/wallet/deposit", s.session(s.handleDepositRequest))
	s.handle(mux, http.MethodPost, "/api/wallet/withdraw", s.session(s.handleWithdrawRequest))

	s.handle(mux, http.MethodGet, "/api/lottery/round", s.handleActiveRound)
	s.handle(mux, http.MethodGet, "/api/lottery/history", s.handleHistory)
	s.handle(mux, http.MethodPost, "/api/lottery/bet", s.session(s.handlePlaceBet))

	s.handle(mux, http.MethodPost, "/api/admin/credit", s.admin(s.handleAdminAdjust(adjustCredit)))
	s.handle(mux, http.MethodPost, "/api/admin/debit", s.admin(s.handleAdminAdjust(adjustDebit)))
	s.handle(mux, http.MethodPost, "/api/admin/deposit", s.admin(s.handleAdminAdjust(adjustDeposit)))
	s.handle(mux, http.MethodPost, "/api/admin/withdraw", s.admin(s.handleAdminAdjust(adjustWithdraw)))
	s.handle(mux, http.MethodGet, "/api/admin/transactions", s.admin(s.handleAdminTransactions))
	s.handle(mux, http.MethodGet, "/api/admin/user/{telegramId}", s.admin(s.handleAdminUser))
	s.handle(mux, http.MethodPost, "/api/admin/round/close", s.admin(s.handleAdminCloseRound))

	mux.Handle("/metrics", promhttp.Handler())

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}

// handle registers h for a single method. Other methods get a JSON 405.
func (s *Server) handle(mux *http.ServeMux, method, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, instrument(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
			return
		}
		h(w, r)
	})))
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) auth.Session {
	sess, _ := ctx.Value(sessionKey{}).(auth.Session)
	return sess
}

// session requires a valid session token and puts it on the request context.
func (s *Server) session(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		sess, err := s.auth.Tokens().Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	}
}

func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if s.adminToken == "" || !secureCompare(token, s.adminToken) {
			s.logEvent("admin_auth_failed", map[string]any{
				"path": r.URL.Path,
			})
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
