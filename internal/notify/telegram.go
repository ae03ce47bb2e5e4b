package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender is the part of *tgbotapi.BotAPI the sink needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts a short message about each change to a set of chats.
type TelegramSink struct {
	bot     TelegramSender
	chatIDs []int64
	loc     *time.Location
}

// NewTelegramBot connects to the Bot API with token.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return bot, nil
}

func NewTelegramSink(bot TelegramSender, chatIDs []int64, loc *time.Location) *TelegramSink {
	if loc == nil {
		loc = time.Local
	}
	return &TelegramSink{bot: bot, chatIDs: chatIDs, loc: loc}
}

func (s *TelegramSink) Name() string { return "telegram" }

// Deliver sends to every chat. A chat that fails stops the delivery so the
// retry covers it; chats before it may then receive the message twice.
func (s *TelegramSink) Deliver(ctx context.Context, ev Event) error {
	text := s.FormatMessage(ev)
	for _, chatID := range s.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := s.bot.Send(msg); err != nil {
			return classifyTelegramError(chatID, err)
		}
	}
	return nil
}

func classifyTelegramError(chatID int64, err error) error {
	wrapped := fmt.Errorf("chat %d: %w", chatID, err)

	apiErr, ok := asTelegramError(err)
	if !ok {
		return wrapped
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests && apiErr.RetryAfter > 0:
		return &RetryAfterError{Delay: time.Duration(apiErr.RetryAfter) * time.Second, Err: wrapped}
	case apiErr.Code == http.StatusBadRequest, apiErr.Code == http.StatusForbidden:
		// Blocked bot or unknown chat.
		return Permanent(wrapped)
	}
	return wrapped
}

func asTelegramError(err error) (*tgbotapi.Error, bool) {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr, true
	}
	return nil, false
}

// FormatMessage renders the text sent for ev.
func (s *TelegramSink) FormatMessage(ev Event) string {
	a := ev.Appointment
	var title string
	switch ev.Kind {
	case KindCreated:
		title = "🗓 Novo agendamento"
	case KindCanceled:
		title = "❌ Agendamento cancelado"
	case KindDeleted:
		title = "🗑 Agendamento removido"
	default:
		title = "✏️ Agendamento atualizado"
	}

	start := a.StartTime.In(s.loc)
	end := a.EndTime.In(s.loc)

	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d\n", title, a.ID)
	fmt.Fprintf(&b, "📅 %s, %s–%s\n", start.Format("02/01/2006"), start.Format("15:04"), end.Format("15:04"))
	fmt.Fprintf(&b, "👤 Profissional #%d · Cliente #%d\n", a.ProfessionalID, a.CustomerID)
	fmt.Fprintf(&b, "📌 Status: %s", statusLabel(a.Status))
	if a.Notes != "" {
		fmt.Fprintf(&b, "\n📝 %s", a.Notes)
	}
	return b.String()
}
