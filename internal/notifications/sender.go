package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Sender delivers a rendered message to a user's chat.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// ErrNotConfigured is returned when a channel is selected without
// credentials.
var ErrNotConfigured = errors.New("delivery channel not configured")

// --------------------------------------------------------------------------
// Log
// --------------------------------------------------------------------------

// LogSender writes messages to the logger instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, userID int64, text string) error {
	s.logger.Info("Notification", "user_id", userID, "body", text)
	return nil
}

// --------------------------------------------------------------------------
// Telegram
// --------------------------------------------------------------------------

// TelegramSender sends messages through the Bot API. Telegram user IDs
// double as private chat IDs.
type TelegramSender struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

// NewTelegramSender authenticates the bot. ratePerSec bounds outbound
// messages (Telegram allows roughly 30/s per bot).
func NewTelegramSender(token string, ratePerSec float64) (*TelegramSender, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: %w", ErrNotConfigured)
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &TelegramSender{bot: bot, limiter: newLimiter(ratePerSec)}, nil
}

func (s *TelegramSender) Send(ctx context.Context, userID int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	msg := tgbotapi.NewMessage(userID, text)
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", userID, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Discord
// --------------------------------------------------------------------------

// DiscordSender sends direct messages through a Discord bot session.
type DiscordSender struct {
	session *discordgo.Session
	limiter *rate.Limiter

	mu       sync.Mutex
	channels map[int64]string // user → DM channel
}

func NewDiscordSender(token string, ratePerSec float64) (*DiscordSender, error) {
	if token == "" {
		return nil, fmt.Errorf("discord: %w", ErrNotConfigured)
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordSender{
		session:  session,
		limiter:  newLimiter(ratePerSec),
		channels: make(map[int64]string),
	}, nil
}

func (s *DiscordSender) Send(ctx context.Context, userID int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	channelID, err := s.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send to %d: %w", userID, err)
	}
	return nil
}

func (s *DiscordSender) dmChannel(ctx context.Context, userID int64) (string, error) {
	s.mu.Lock()
	id, ok := s.channels[userID]
	s.mu.Unlock()
	if ok {
		return id, nil
	}
	ch, err := s.session.UserChannelCreate(strconv.FormatInt(userID, 10), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord dm channel for %d: %w", userID, err)
	}
	s.mu.Lock()
	s.channels[userID] = ch.ID
	s.mu.Unlock()
	return ch.ID, nil
}

// Close releases the Discord session.
func (s *DiscordSender) Close() error {
	return s.session.Close()
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func newLimiter(ratePerSec float64) *rate.Limiter {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSec), burst)
}

// NewSender builds the sender for a configured channel name.
func NewSender(channel, telegramToken, discordToken string, ratePerSec float64, logger *slog.Logger) (Sender, error) {
	switch channel {
	case "", "log":
		return NewLogSender(logger), nil
	case "telegram":
		s, err := NewTelegramSender(telegramToken, ratePerSec)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "discord":
		s, err := NewDiscordSender(discordToken, ratePerSec)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown delivery channel %q", channel)
}
