package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/ducminhle1904/crypto-futures-bot/internal/bot"
	"github.com/ducminhle1904/crypto-futures-bot/internal/notifications"
	"github.com/ducminhle1904/crypto-futures-bot/internal/safety"
)

var _ Controller = (*bot.FuturesBot)(nil)

// BotAPI is the Telegram client surface the poller needs.
type BotAPI interface {
	Call(ctx context.Context, method string, params url.Values) (json.RawMessage, error)
	Send(ctx context.Context, chatID, text string, markdown bool) error
}

var _ BotAPI = (*notifications.TelegramNotifier)(nil)

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From *struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

// TelegramPoller long-polls getUpdates and answers commands from one chat.
type TelegramPoller struct {
	api         BotAPI
	handler     *Handler
	chatID      string
	pollTimeout time.Duration
	limiter     *safety.RateLimiter
	log         zerolog.Logger

	offset int64
}

func NewTelegramPoller(api BotAPI, handler *Handler, chatID string, log zerolog.Logger) *TelegramPoller {
	return &TelegramPoller{
		api:         api,
		handler:     handler,
		chatID:      chatID,
		pollTimeout: 30 * time.Second,
		// Bot API allows about one message per second per chat.
		limiter: safety.NewRateLimiter("telegram-replies", 3, 1),
		log:     log.With().Str("component", "commands").Logger(),
	}
}

// SetPollTimeout sets the getUpdates long-poll duration. Zero makes short polls.
func (p *TelegramPoller) SetPollTimeout(d time.Duration) { p.pollTimeout = d }

// Run polls until ctx is cancelled. Network failures back off exponentially.
func (p *TelegramPoller) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	p.log.Info().Str("chat_id", p.chatID).Msg("command poller started")
	for {
		err := p.poll(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			bo.Reset()
			continue
		}
		wait := bo.NextBackOff()
		p.log.Warn().Err(err).Dur("retry_in", wait).Msg("getUpdates failed")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// poll fetches one batch of updates and answers them in order.
func (p *TelegramPoller) poll(ctx context.Context) error {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(p.offset, 10))
	params.Set("timeout", strconv.Itoa(int(p.pollTimeout/time.Second)))
	params.Set("allowed_updates", `["message"]`)

	callCtx, cancel := context.WithTimeout(ctx, p.pollTimeout+15*time.Second)
	defer cancel()
	raw, err := p.api.Call(callCtx, "getUpdates", params)
	if err != nil {
		return err
	}
	var updates []update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return fmt.Errorf("decode updates: %w", err)
	}

	for _, u := range updates {
		if u.UpdateID >= p.offset {
			p.offset = u.UpdateID + 1
		}
		p.handle(ctx, u)
	}
	return nil
}

func (p *TelegramPoller) handle(ctx context.Context, u update) {
	if u.Message == nil || !strings.HasPrefix(u.Message.Text, "/") {
		return
	}
	chat := strconv.FormatInt(u.Message.Chat.ID, 10)
	if chat != p.chatID {
		p.log.Warn().Str("chat_id", chat).Msg("ignoring command from unknown chat")
		return
	}

	ev := p.log.Info().Str("command", u.Message.Text)
	if u.Message.From != nil {
		ev = ev.Str("from", u.Message.From.Username)
	}
	ev.Msg("command received")

	reply := p.handler.Handle(ctx, u.Message.Text)
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}
	if err := p.api.Send(ctx, chat, reply, strings.HasPrefix(reply, "```")); err != nil {
		p.log.Error().Err(err).Msg("command reply failed")
	}
}
