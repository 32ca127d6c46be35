package notify_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"kyatlotto/internal/notify"
	"kyatlotto/internal/store"
)

type sentMessage struct {
	chatID string
	text   string
}

type fakeTelegram struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (f *fakeTelegram) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"lotto","username":"lotto_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		fail := f.fail
		if !fail {
			f.sent = append(f.sent, sentMessage{chatID: r.PostForm.Get("chat_id"), text: r.PostForm.Get("text")})
		}
		f.mu.Unlock()
		if fail {
			fmt.Fprint(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":1,"type":"private"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeTelegram) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func newBot(t *testing.T) (*tgbotapi.BotAPI, *fakeTelegram) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	bot, err := tgbotapi.NewBotAPIWithClient("test-token", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return bot, fake
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *captureLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func TestFormatKyat(t *testing.T) {
	tests := map[int64]string{
		0:      "0.00 KYAT",
		5:      "0.05 KYAT",
		1000:   "10.00 KYAT",
		123456: "1234.56 KYAT",
		-250:   "-2.50 KYAT",
	}
	for in, want := range tests {
		if got := notify.FormatKyat(in); got != want {
			t.Errorf("FormatKyat(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestDepositRequestGoesToAdmin(t *testing.T) {
	bot, fake := newBot(t)
	n := notify.NewTelegram(bot, 555, nil)

	username := "alice"
	n.DepositRequested(context.Background(), store.User{TelegramID: "42", Username: &username}, 2500)

	sent := fake.messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].chatID != "555" {
		t.Fatalf("expected admin chat, got %s", sent[0].chatID)
	}
	if !strings.Contains(sent[0].text, "@alice") || !strings.Contains(sent[0].text, "25.00 KYAT") {
		t.Fatalf("unexpected text: %q", sent[0].text)
	}
}

func TestAdminMessagesSkippedWithoutChat(t *testing.T) {
	bot, fake := newBot(t)
	n := notify.NewTelegram(bot, 0, nil)

	n.WithdrawRequested(context.Background(), store.User{TelegramID: "42"}, 100)

	if sent := fake.messages(); len(sent) != 0 {
		t.Fatalf("expected no messages, got %v", sent)
	}
}

func TestRoundFinishedNotifiesWinner(t *testing.T) {
	bot, fake := newBot(t)
	n := notify.NewTelegram(bot, 555, nil)

	res := store.RoundResult{
		Round:    store.Round{ID: uuid.New(), Status: store.RoundFinished, TotalPool: 10000, Payout: 9000},
		BetCount: 3,
		Winner:   &store.Winner{UserID: uuid.New(), TelegramID: "42", Winnings: 9000},
	}
	n.RoundFinished(context.Background(), res)

	sent := fake.messages()
	if len(sent) != 2 {
		t.Fatalf("expected admin and winner messages, got %v", sent)
	}
	if sent[0].chatID != "555" || !strings.Contains(sent[0].text, "100.00 KYAT") {
		t.Fatalf("unexpected admin message: %+v", sent[0])
	}
	if sent[1].chatID != "42" || !strings.Contains(sent[1].text, "90.00 KYAT") {
		t.Fatalf("unexpected winner message: %+v", sent[1])
	}
}

func TestRoundFinishedWithoutBets(t *testing.T) {
	bot, fake := newBot(t)
	n := notify.NewTelegram(bot, 555, nil)

	n.RoundFinished(context.Background(), store.RoundResult{Round: store.Round{ID: uuid.New()}})

	sent := fake.messages()
	if len(sent) != 1 || !strings.Contains(sent[0].text, "no bets") {
		t.Fatalf("unexpected messages: %v", sent)
	}
}

func TestSendFailureIsLogged(t *testing.T) {
	bot, fake := newBot(t)
	fake.fail = true
	logger := &captureLogger{}
	n := notify.NewTelegram(bot, 555, logger)

	n.DepositRequested(context.Background(), store.User{TelegramID: "42"}, 100)

	if !logger.contains(`"event":"notify_failed"`) {
		t.Fatalf("expected notify_failed event, got %v", logger.lines)
	}
}
