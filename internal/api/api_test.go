package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kyatlotto/internal/api"
	"kyatlotto/internal/auth"
	"kyatlotto/internal/lottery"
	"kyatlotto/internal/store"
	"kyatlotto/internal/testdb"
)

const (
	botToken   = "123456:test-bot-token"
	adminToken = "admin-token"
)

type walletRequest struct {
	kind       string
	telegramID string
	amount     int64
}

type fakeNotifier struct {
	mu       sync.Mutex
	requests []walletRequest
}

func (f *fakeNotifier) DepositRequested(_ context.Context, u store.User, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, walletRequest{kind: "deposit", telegramID: u.TelegramID, amount: amount})
}

func (f *fakeNotifier) WithdrawRequested(_ context.Context, u store.User, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, walletRequest{kind: "withdraw", telegramID: u.TelegramID, amount: amount})
}

type testEnv struct {
	pool     *pgxpool.Pool
	server   *httptest.Server
	client   *http.Client
	notifier *fakeNotifier
}

func setupTest(t *testing.T) *testEnv {
	return setupTestWithAdmin(t, adminToken)
}

func setupTestWithAdmin(t *testing.T, admin string) *testEnv {
	t.Helper()

	pool := testdb.Open(t)
	st := store.New(pool)
	logger := log.New(io.Discard, "", 0)

	lot := lottery.NewService(st, lottery.Config{}, logger)
	authn := auth.NewAuthenticator(botToken, 0, st, auth.NewTokenIssuer("test-secret", time.Hour))
	notifier := &fakeNotifier{}

	srv := api.NewServer(st, lot, authn, admin, logger, api.WithNotifier(notifier))
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &testEnv{
		pool:     pool,
		server:   ts,
		client:   &http.Client{Timeout: 5 * time.Second},
		notifier: notifier,
	}
}

func (e *testEnv) doRequest(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		resp.Body.Close()
		t.Fatalf("expected %d, got %d", status, resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	decode(t, resp, &body)
	if body.Error != code {
		t.Fatalf("expected error %q, got %q", code, body.Error)
	}
}

func initData(telegramID int64, username string, authDate time.Time) string {
	fields := url.Values{
		"user":      {fmt.Sprintf(`{"id":%d,"first_name":"Test","username":%q}`, telegramID, username)},
		"auth_date": {strconv.FormatInt(authDate.Unix(), 10)},
		"query_id":  {"AAF-test"},
	}
	fields.Set("hash", auth.Sign(fields, botToken))
	return fields.Encode()
}

func authBody(raw string) string {
	data, _ := json.Marshal(map[string]string{"initData": raw})
	return string(data)
}

func (e *testEnv) login(t *testing.T, telegramID int64, username string) string {
	t.Helper()

	resp := e.doRequest(t, http.MethodPost, "/api/auth/telegram", "", authBody(initData(telegramID, username, time.Now())))
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("login: expected %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var got struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	decode(t, resp, &got)
	if !got.Success || got.Token == "" {
		t.Fatalf("login: unexpected response %+v", got)
	}
	return got.Token
}

func (e *testEnv) credit(t *testing.T, telegramID int64, amount int64) {
	t.Helper()

	body := fmt.Sprintf(`{"telegramId":"%d","amount":%d}`, telegramID, amount)
	resp := e.doRequest(t, http.MethodPost, "/api/admin/credit", adminToken, body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("credit: expected %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func (e *testEnv) balance(t *testing.T, token string) int64 {
	t.Helper()

	resp := e.doRequest(t, http.MethodGet, "/api/wallet/balance", token, "")
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("balance: expected %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var got struct {
		Balance int64 `json:"balance"`
	}
	decode(t, resp, &got)
	return got.Balance
}
