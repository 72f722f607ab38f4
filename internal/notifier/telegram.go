package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// FamilyTelegram is the destination family served by TelegramTransport.
	FamilyTelegram = "telegram"

	telegramParseMode      = "HTML"
	telegramIdleTimeout    = 90 * time.Second
	telegramMaxErrorBody   = 4096
	telegramDefaultPool    = 8
	telegramDefaultTimeout = 30 * time.Second
)

// TelegramConfig configures the Bot API transport.
type TelegramConfig struct {
	Token           string
	APIURL          string
	Timeout         time.Duration
	MaxConnsPerHost int
}

// TelegramTransport posts messages through the Telegram Bot API. It owns its
// HTTP client and connection pool.
type TelegramTransport struct {
	client *http.Client
	apiURL string
	token  string
}

// NewTelegramTransport creates a transport. An empty token yields ErrNotConfigured.
func NewTelegramTransport(cfg TelegramConfig) (*TelegramTransport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram bot token missing: %w", ErrNotConfigured)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = telegramDefaultTimeout
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = telegramDefaultPool
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		IdleConnTimeout:     telegramIdleTimeout,
		TLSHandshakeTimeout: cfg.Timeout,
	}

	return &TelegramTransport{
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		token:  cfg.Token,
	}, nil
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Send posts message to chatID with HTML parse mode.
func (t *TelegramTransport) Send(ctx context.Context, chatID, message string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: message, ParseMode: telegramParseMode})
	if err != nil {
		return &DeliveryError{Class: ClassPermanent, Family: FamilyTelegram, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Class: ClassPermanent, Family: FamilyTelegram, Err: t.redact(err)}
	}
	req.Header.Set("Content-Type", "application/json")

	return t.do(req)
}

// Ping calls getMe to verify the token.
func (t *TelegramTransport) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.methodURL("getMe"), http.NoBody)
	if err != nil {
		return &DeliveryError{Class: ClassPermanent, Family: FamilyTelegram, Err: t.redact(err)}
	}
	return t.do(req)
}

// Close drops idle pooled connections.
func (t *TelegramTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *TelegramTransport) methodURL(method string) string {
	return t.apiURL + "/bot" + t.token + "/" + method
}

func (t *TelegramTransport) do(req *http.Request) error {
	resp, err := t.client.Do(req)
	if err != nil {
		err = t.redact(err)
		return &DeliveryError{Class: classifyNetwork(err), Family: FamilyTelegram, Err: err}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, telegramMaxErrorBody))
	if readErr != nil {
		return &DeliveryError{Class: ClassRetryable, Family: FamilyTelegram, Err: readErr}
	}

	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices && parsed.OK {
		return nil
	}

	description := parsed.Description
	if description == "" {
		description = http.StatusText(resp.StatusCode)
	}

	return &DeliveryError{
		Class:      classifyStatus(resp.StatusCode),
		Family:     FamilyTelegram,
		StatusCode: resp.StatusCode,
		Err:        errors.New(description),
	}
}

// redact strips the bot token from URL errors.
func (t *TelegramTransport) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, t.token, "<redacted>")
	}
	return err
}

const (
	statusServerErrorLow  = 500
	statusServerErrorHigh = 599
)

// classifyStatus maps a Bot API HTTP status to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= statusServerErrorLow && status <= statusServerErrorHigh:
		return ClassRetryable
	default:
		return ClassPermanent
	}
}

func classifyNetwork(err error) ErrorClass {
	if class := Classify(err); class != ClassPermanent {
		return class
	}
	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	return ClassRetryable
}
