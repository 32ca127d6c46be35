// Package notify sends operator and player messages through the Telegram
// Bot API.
package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"kyatlotto/internal/eventlog"
	"kyatlotto/internal/store"
)

// Sender is the part of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers notifications via a bot. Admin messages are dropped when
// no admin chat is configured.
type Telegram struct {
	bot         Sender
	adminChatID int64
	logger      eventlog.Logger
}

func NewTelegram(bot Sender, adminChatID int64, logger eventlog.Logger) *Telegram {
	return &Telegram{
		bot:         bot,
		adminChatID: adminChatID,
		logger:      eventlog.OrNop(logger),
	}
}

// FormatKyat renders minor units as "12.34 KYAT".
func FormatKyat(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2) + " KYAT"
}

func displayName(telegramID string, username *string) string {
	if username != nil && *username != "" {
		return "@" + *username
	}
	return "id " + telegramID
}

func (t *Telegram) DepositRequested(ctx context.Context, user store.User, amount int64) {
	t.toAdmin("deposit_request", fmt.Sprintf(
		"Deposit request\nUser: %s (%s)\nAmount: %s",
		displayName(user.TelegramID, user.Username), user.TelegramID, FormatKyat(amount),
	))
}

func (t *Telegram) WithdrawRequested(ctx context.Context, user store.User, amount int64) {
	t.toAdmin("withdraw_request", fmt.Sprintf(
		"Withdrawal request\nUser: %s (%s)\nAmount: %s",
		displayName(user.TelegramID, user.Username), user.TelegramID, FormatKyat(amount),
	))
}

// RoundFinished tells the admin chat about every closed round and the winner
// about their payout.
func (t *Telegram) RoundFinished(ctx context.Context, res store.RoundResult) {
	if res.Winner == nil {
		t.toAdmin("round_finished", fmt.Sprintf(
			"Round %s closed with no bets",
			res.Round.ID,
		))
		return
	}

	w := res.Winner
	t.toAdmin("round_finished", fmt.Sprintf(
		"Round %s closed\nBets: %d\nPool: %s\nWinner: %s won %s",
		res.Round.ID, res.BetCount, FormatKyat(res.Round.TotalPool),
		displayName(w.TelegramID, w.Username), FormatKyat(w.Winnings),
	))

	chatID, err := strconv.ParseInt(w.TelegramID, 10, 64)
	if err != nil {
		eventlog.Event(t.logger, "notify_failed", map[string]any{
			"kind":        "winner",
			"telegram_id": w.TelegramID,
			"error":       "telegram id is not numeric",
		})
		return
	}
	t.send(chatID, "winner", fmt.Sprintf(
		"You won %s in the last round! The winnings are already on your balance.",
		FormatKyat(w.Winnings),
	))
}

func (t *Telegram) toAdmin(kind, text string) {
	if t.adminChatID == 0 {
		return
	}
	t.send(t.adminChatID, kind, text)
}

func (t *Telegram) send(chatID int64, kind, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		eventlog.Event(t.logger, "notify_failed", map[string]any{
			"kind":    kind,
			"chat_id": chatID,
			"error":   err.Error(),
		})
		return
	}
	eventlog.Event(t.logger, "notify_sent", map[string]any{
		"kind":    kind,
		"chat_id": chatID,
	})
}

// Nop drops every notification.
type Nop struct{}

func (Nop) DepositRequested(context.Context, store.User, int64) {}
func (Nop) WithdrawRequested(context.Context, store.User, int64) {}
func (Nop) RoundFinished(context.Context, store.RoundResult) {}
