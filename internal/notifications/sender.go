package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ErrSenderDisabled is returned by a nil TelegramSender.
var ErrSenderDisabled = errors.New("telegram sender not configured")

// Sender delivers one formatted message to one chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramSender sends HTML messages through the Telegram Bot API.
// Nil-safe: a nil sender refuses every send with ErrSenderDisabled.
type TelegramSender struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewTelegramSender creates a sender for the bot token, limited to
// perSecond messages across all chats. Returns nil if token is empty.
func NewTelegramSender(apiURL, token string, perSecond float64, logger *slog.Logger) *TelegramSender {
	if token == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &TelegramSender{
		http: resty.New().
			SetBaseURL(apiURL + "/bot" + token).
			SetTimeout(15 * time.Second).
			SetHeader("Content-Type", "application/json"),
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:  logger,
	}
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send posts one sendMessage call. Telegram-level failures (blocked bot,
// flood control, unknown chat) come back as errors.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	if s == nil {
		return ErrSenderDisabled
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var result apiResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{
			ChatID:                chatID,
			Text:                  text,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	if !result.OK {
		if result.Parameters != nil && result.Parameters.RetryAfter > 0 {
			return fmt.Errorf("telegram sendMessage to %d: %d %s (retry after %ds)",
				chatID, resp.StatusCode(), result.Description, result.Parameters.RetryAfter)
		}
		return fmt.Errorf("telegram sendMessage to %d: %d %s", chatID, resp.StatusCode(), result.Description)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. Used for
// dry runs from the CLI.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the message and always succeeds.
func (s LogSender) Send(_ context.Context, chatID int64, text string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Dry-run message", "chat_id", chatID, "text", text)
	return nil
}
