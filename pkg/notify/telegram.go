package notify

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v3"

	"companioncare/pkg/logger"
)

// TelegramNotifier delivers notifications as telegram messages to the party's
// linked chat.
type TelegramNotifier struct {
	bot *tele.Bot
	log logger.ILogger
}

func NewTelegramNotifier(token string, log logger.ILogger) (*TelegramNotifier, error) {
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("notify: init telegram bot: %w", err)
	}

	// The reply carries the chat id the user needs to link their profile.
	b.Handle("/start", func(c tele.Context) error {
		return c.Send(fmt.Sprintf("Your chat id is %d. Add it to your profile to receive notifications.", c.Chat().ID))
	})

	return &TelegramNotifier{bot: b, log: log}, nil
}

// Start begins long polling. It blocks until Stop is called.
func (n *TelegramNotifier) Start() {
	n.bot.Start()
}

func (n *TelegramNotifier) Stop() {
	n.bot.Stop()
}

func (n *TelegramNotifier) SendNow(_ context.Context, chatID int64, title, body string) error {
	_, err := n.bot.Send(&tele.User{ID: chatID}, title+"\n"+body)
	if err != nil {
		n.log.Error("failed to send telegram notification",
			logger.Int64("chat_id", chatID),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// ScheduleAt arms an in-process timer. The send is fire-and-forget: a failed
// delivery is logged, not retried.
func (n *TelegramNotifier) ScheduleAt(_ context.Context, chatID int64, at time.Time, title, body string, _ map[string]string) error {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		if _, err := n.bot.Send(&tele.User{ID: chatID}, title+"\n"+body); err != nil {
			n.log.Error("failed to deliver scheduled notification",
				logger.Int64("chat_id", chatID),
				logger.Error(err),
			)
		}
	})
	return nil
}
