package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func TestSendMessageRequest(t *testing.T) {
	var capturedURL string
	var payload map[string]any
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &payload))
		return okResponse(`{"ok":true}`), nil
	})

	client, err := NewClient("tok", WithBaseURL("http://tg.test"), WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	markup := &InlineKeyboard{Rows: [][]InlineButton{{{Text: "Ready", CallbackData: "file_status_x_READY"}}}}
	require.NoError(t, client.SendMessage(context.Background(), -100, "new order ORD-1", markup))

	assert.Equal(t, "http://tg.test/bottok/sendMessage", capturedURL)
	assert.Equal(t, float64(-100), payload["chat_id"])
	assert.Equal(t, "new order ORD-1", payload["text"])
	assert.Contains(t, payload, "reply_markup")
}

func TestCallReportsAPIRejection(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return okResponse(`{"ok":false,"description":"message is not modified"}`), nil
	})
	client, err := NewClient("tok", WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	err = client.EditMessageText(context.Background(), 1, 2, "x", nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Contains(t, err.Error(), "not modified")
}

func TestCallReportsHTTPStatus(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader("bad gateway")), Header: http.Header{}}, nil
	})
	client, err := NewClient("tok", WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	err = client.AnswerCallbackQuery(context.Background(), "cb-1", "done")
	require.Error(t, err)
	cause := errors.Unwrap(err)
	require.NotNil(t, cause)
	assert.Contains(t, cause.Error(), "502")
}

func TestValidation(t *testing.T) {
	_, err := NewClient("  ")
	assert.ErrorIs(t, err, errTokenRequired)

	client, err := NewClient("tok")
	require.NoError(t, err)
	assert.True(t, pkgerrors.IsCode(client.SendMessage(context.Background(), 1, " ", nil), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(client.AnswerCallbackQuery(context.Background(), "", "x"), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(client.EditMessageText(context.Background(), 1, 0, "x", nil), pkgerrors.CodeValidation))
}
