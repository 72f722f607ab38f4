package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/notifier"
)

const testToken = "123456:SECRET-token"

type capturedRequest struct {
	path string
	body map[string]string
}

func newTelegramServer(t *testing.T, status int, response string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()

	captured := make(chan capturedRequest, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{path: r.URL.Path}
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&req.body)
		}
		captured <- req

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	return server, captured
}

func newTelegram(t *testing.T, apiURL string) *notifier.TelegramTransport {
	t.Helper()

	transport, err := notifier.NewTelegramTransport(notifier.TelegramConfig{
		Token:   testToken,
		APIURL:  apiURL,
		Timeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

func TestTelegramTransport_Send(t *testing.T) {
	t.Parallel()

	server, captured := newTelegramServer(t, http.StatusOK, `{"ok":true,"result":{"message_id":1}}`)
	transport := newTelegram(t, server.URL)

	require.NoError(t, transport.Send(context.Background(), "-100200", "<b>New document</b>"))

	req := <-captured
	assert.Equal(t, "/bot"+testToken+"/sendMessage", req.path)
	assert.Equal(t, "-100200", req.body["chat_id"])
	assert.Equal(t, "<b>New document</b>", req.body["text"])
	assert.Equal(t, "HTML", req.body["parse_mode"])
}

func TestTelegramTransport_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		response string
		want     notifier.ErrorClass
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, response: `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5"}`, want: notifier.ClassRetryable},
		{name: "bad gateway", status: http.StatusBadGateway, response: `{"ok":false}`, want: notifier.ClassRetryable},
		{name: "unauthorized", status: http.StatusUnauthorized, response: `{"ok":false,"error_code":401,"description":"Unauthorized"}`, want: notifier.ClassPermanent},
		{name: "bad request", status: http.StatusBadRequest, response: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, want: notifier.ClassPermanent},
		{name: "forbidden", status: http.StatusForbidden, response: `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`, want: notifier.ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, _ := newTelegramServer(t, tt.status, tt.response)
			err := newTelegram(t, server.URL).Send(context.Background(), "1", "hello")

			var deliveryErr *notifier.DeliveryError
			require.ErrorAs(t, err, &deliveryErr)
			assert.Equal(t, tt.want, deliveryErr.Class)
			assert.Equal(t, tt.status, deliveryErr.StatusCode)
			assert.Equal(t, tt.want, notifier.Classify(err))
		})
	}
}

func TestTelegramTransport_NetworkErrorRedactsToken(t *testing.T) {
	t.Parallel()

	transport := newTelegram(t, "http://127.0.0.1:1")
	err := transport.Send(context.Background(), "1", "hello")

	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")
	assert.Equal(t, notifier.ClassRetryable, notifier.Classify(err))
}

func TestTelegramTransport_Ping(t *testing.T) {
	t.Parallel()

	server, captured := newTelegramServer(t, http.StatusOK, `{"ok":true,"result":{"id":1,"is_bot":true}}`)
	n := notifier.New(notifier.Config{}, logger.NewNop(),
		notifier.WithTransport(notifier.FamilyTelegram, func() (notifier.Transport, error) {
			return newTelegram(t, server.URL), nil
		}),
	)

	require.NoError(t, n.Ping(context.Background(), notifier.Destination{Family: notifier.FamilyTelegram}))
	assert.Equal(t, "/bot"+testToken+"/getMe", (<-captured).path)
}

func TestNewTelegramTransport_MissingToken(t *testing.T) {
	t.Parallel()

	_, err := notifier.NewTelegramTransport(notifier.TelegramConfig{Token: "  "})
	assert.True(t, errors.Is(err, notifier.ErrNotConfigured))
}
