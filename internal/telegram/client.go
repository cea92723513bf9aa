// Package telegram is a thin Bot API client covering the calls the intake bot
// makes: long polling, sending and editing messages, re-sending stored media,
// answering callback queries and uploading export files.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/hr-intake-bot/internal/domain"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// ParseHTML is the parse mode used for staff cards.
const ParseHTML = "HTML"

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.Code, e.Description)
}

// ErrNotModified is returned by EditMessageText when the new text equals the
// current one.
var ErrNotModified = errors.New("telegram: message is not modified")

var apiCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "telegram_api_calls_total",
		Help: "Total number of Bot API calls.",
	},
	[]string{"method", "outcome"},
)

func init() {
	prometheus.MustRegister(apiCalls)
}

// Client talks to one bot.
type Client struct {
	http    *resty.Client
	base    string
	timeout time.Duration
}

// New builds a Client for token. Each non-polling call is bounded by timeout.
func New(apiBase, token string, timeout time.Duration) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    resty.New(),
		base:    strings.TrimRight(apiBase, "/") + "/bot" + token + "/",
		timeout: timeout,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, timeout time.Duration, build func(*resty.Request) *resty.Request, out any) (err error) {
	ctx, span := otel.Tracer("telegram").Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("telegram.method", method)),
	)
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		apiCalls.WithLabelValues(method, outcome).Inc()
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := build(c.http.R().SetContext(ctx)).Post(c.base + method)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	var env apiResponse
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("telegram: %s: decode (status %d): %w", method, resp.StatusCode(), err)
	}
	if !env.OK {
		if strings.Contains(env.Description, "message is not modified") {
			return ErrNotModified
		}
		return &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram: %s: decode result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) callJSON(ctx context.Context, method string, payload any, out any) error {
	return c.call(ctx, method, c.timeout, func(r *resty.Request) *resty.Request {
		return r.SetHeader("Content-Type", "application/json").SetBody(payload)
	}, out)
}

func sentOf(m Message) Sent {
	return Sent{MessageID: m.MessageID, Date: time.Unix(m.Date, 0).UTC()}
}

// SendOptions are optional sendMessage parameters.
type SendOptions struct {
	ParseMode string
	Markup    any
	ReplyTo   int
}

type sendMessageReq struct {
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ParseMode        string `json:"parse_mode,omitempty"`
	ReplyMarkup      any    `json:"reply_markup,omitempty"`
	ReplyToMessageID int    `json:"reply_to_message_id,omitempty"`
}

// SendMessage posts text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (Sent, error) {
	var m Message
	err := c.callJSON(ctx, "sendMessage", sendMessageReq{
		ChatID:           chatID,
		Text:             text,
		ParseMode:        opts.ParseMode,
		ReplyMarkup:      opts.Markup,
		ReplyToMessageID: opts.ReplyTo,
	}, &m)
	if err != nil {
		return Sent{}, err
	}
	return sentOf(m), nil
}

var mediaMethods = map[domain.AttachmentKind]string{
	domain.KindPhoto:    "sendPhoto",
	domain.KindDocument: "sendDocument",
	domain.KindVideo:    "sendVideo",
	domain.KindVoice:    "sendVoice",
}

// SendMedia re-sends a stored media item by its file id, optionally as a
// reply to replyTo.
func (c *Client) SendMedia(ctx context.Context, chatID int64, a domain.Attachment, replyTo int) (Sent, error) {
	method, ok := mediaMethods[a.Kind]
	if !ok {
		return Sent{}, fmt.Errorf("telegram: unsupported attachment kind %q", a.Kind)
	}
	payload := map[string]any{"chat_id": chatID}
	payload[string(a.Kind)] = a.MediaRef
	if replyTo != 0 {
		payload["reply_to_message_id"] = replyTo
	}
	var m Message
	if err := c.callJSON(ctx, method, payload, &m); err != nil {
		return Sent{}, err
	}
	return sentOf(m), nil
}

type editMessageReq struct {
	ChatID      int64  `json:"chat_id"`
	MessageID   int    `json:"message_id"`
	Text        string `json:"text"`
	ParseMode   string `json:"parse_mode,omitempty"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

// EditMessageText replaces the text (and optionally the inline keyboard) of
// a message the bot sent.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text, parseMode string, markup any) error {
	return c.callJSON(ctx, "editMessageText", editMessageReq{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   parseMode,
		ReplyMarkup: markup,
	}, nil)
}

// AnswerCallbackQuery acknowledges a button press with an optional toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	return c.callJSON(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": id,
		"text":              text,
	}, nil)
}

// SendDocumentBytes uploads data as a new document.
func (c *Client) SendDocumentBytes(ctx context.Context, chatID int64, filename string, data []byte, caption string) (Sent, error) {
	var m Message
	err := c.call(ctx, "sendDocument", c.timeout, func(r *resty.Request) *resty.Request {
		form := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
		if caption != "" {
			form["caption"] = caption
		}
		return r.SetFormData(form).SetFileReader("document", filename, bytes.NewReader(data))
	}, &m)
	if err != nil {
		return Sent{}, err
	}
	return sentOf(m), nil
}

// GetUpdates long-polls for updates with id >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, poll time.Duration) ([]Update, error) {
	var ups []Update
	err := c.call(ctx, "getUpdates", poll+c.timeout, func(r *resty.Request) *resty.Request {
		return r.SetHeader("Content-Type", "application/json").SetBody(map[string]any{
			"offset":          offset,
			"timeout":         int(poll / time.Second),
			"allowed_updates": []string{"message", "callback_query"},
		})
	}, &ups)
	return ups, err
}

// SetWebhook registers url for update delivery. Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	body := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		body["secret_token"] = secret
	}
	return c.callJSON(ctx, "setWebhook", body, nil)
}

// DeleteWebhook switches the bot to polling mode.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return c.callJSON(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": dropPending}, nil)
}
