package alerting

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"inventuri/internal/trend"
)

// Reason 描述触发告警的原因。
type Reason string

const (
	ReasonLowStock   Reason = "low_stock"
	ReasonDecreasing Reason = "decreasing"
	ReasonManual     Reason = "manual"
)

// Notification 封装库存告警上下文。
type Notification struct {
	ItemID     int64
	ItemName   string
	Unit       string
	Quantity   int
	Threshold  int
	Trend      trend.Label
	ChangePct  decimal.Decimal
	Reasons    []Reason
	ObservedAt time.Time
	Note       string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	chatID string
	client *resty.Client
	logger zerolog.Logger
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	client := resty.New().
		SetBaseURL(fmt.Sprintf("%s/bot%s", strings.TrimRight(baseURL, "/"), botToken)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &TelegramNotifier{
		chatID: chatID,
		client: client,
		logger: logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	result := new(telegramResponse)
	apiErr := new(telegramResponse)

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": n.chatID,
			"text":    RenderMessage(note),
		}).
		SetResult(result).
		SetError(apiErr).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("telegram api error: code=%d, message=%s", resp.StatusCode(), apiErr.Description)
	}
	if !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().Str("item", note.ItemName).
		Int("quantity", note.Quantity).
		Str("reasons", joinReasons(note.Reasons)).
		Msg("stock alert sent (Telegram)")
	return nil
}

// RenderMessage formats a notification as plain text.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Inventory Alert]\n")
	builder.WriteString(fmt.Sprintf("Item: %s\n", note.ItemName))
	if note.Unit != "" {
		builder.WriteString(fmt.Sprintf("Quantity: %d %s\n", note.Quantity, note.Unit))
	} else {
		builder.WriteString(fmt.Sprintf("Quantity: %d\n", note.Quantity))
	}
	for _, reason := range note.Reasons {
		if reason == ReasonLowStock {
			builder.WriteString(fmt.Sprintf("Low stock (threshold %d)\n", note.Threshold))
		}
	}
	builder.WriteString(fmt.Sprintf("Trend: %s (%s%% over last readings)\n", note.Trend, note.ChangePct.StringFixed(2)))
	if !note.ObservedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Checked: %s UTC\n", note.ObservedAt.UTC().Format(time.RFC3339)))
	}
	if note.Note != "" {
		builder.WriteString(note.Note)
	}
	return builder.String()
}

func joinReasons(reasons []Reason) string {
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

var _ Notifier = (*TelegramNotifier)(nil)
