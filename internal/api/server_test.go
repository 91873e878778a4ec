package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deviantnotify/deviant-notify/internal/models"
	"github.com/deviantnotify/deviant-notify/internal/monitoring"
	"github.com/deviantnotify/deviant-notify/internal/notifications"
)

func newTestServer(t *testing.T, f *controllerFixture) (*httptest.Server, *Hub) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	hub := NewHub(metrics)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer(f.controller, f.monitor, hub, metrics).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, hub
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, newFixture())

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_RPC(t *testing.T) {
	f := newFixture()
	f.scheduler.On("Restart", true).Return(nil)
	srv, _ := newTestServer(t, f)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"popup data", `{"action":"getPopupData"}`, http.StatusOK, `"username":"someone"`},
		{"void action", `{"action":"instantUpdate"}`, http.StatusNoContent, ""},
		{"options", `{"action":"updateOptions","data":{}}`, http.StatusOK, `{"status":true}`},
		{"unknown action", `{"action":"openWatchPage"}`, http.StatusBadRequest, "unknown action"},
		{"malformed", `{`, http.StatusBadRequest, "invalid request envelope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/rpc", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

			var buf strings.Builder
			_, _ = buf.ReadFrom(resp.Body)
			assert.Contains(t, buf.String(), tt.wantBody)
		})
	}
}

func TestServer_RPCMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, newFixture())

	resp, err := http.Get(srv.URL + "/rpc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_ButtonRedirects(t *testing.T) {
	f := newFixture()
	f.notifier.On("ResolveButton", notifications.NotificationID, 0).Return(notifications.ActionOpenNotes)
	f.notifier.On("Clear", mock.Anything, notifications.NotificationID).Return(nil)
	srv, _ := newTestServer(t, f)

	client := &http.Client{CheckRedirect: noRedirect}
	resp, err := client.Get(srv.URL + "/notifications/Deviant-Notify/buttons/0")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://www.deviantart.com/notifications/notes", resp.Header.Get("Location"))
}

func TestServer_ButtonDismiss(t *testing.T) {
	f := newFixture()
	f.notifier.On("ResolveButton", notifications.NotificationID, 0).Return(notifications.ActionDismiss)
	f.notifier.On("Clear", mock.Anything, notifications.NotificationID).Return(nil)
	srv, _ := newTestServer(t, f)

	resp, err := http.Get(srv.URL + "/notifications/Deviant-Notify/buttons/0")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.notifier.AssertExpectations(t)
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, newFixture())

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf strings.Builder
	_, _ = buf.ReadFrom(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "deviant_notify_ws_clients")
}

func TestServer_WebsocketPush(t *testing.T) {
	srv, hub := newTestServer(t, newFixture())

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}

	readEnvelope := func() (Envelope, models.PopupData) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		var data models.PopupData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		return env, data
	}

	env, data := readEnvelope()
	assert.Equal(t, ActionBroadcastUpdate, env.Action)
	assert.Equal(t, "someone", data.Username)

	hub.Broadcast(models.PopupData{Badge: "9", Updating: true})
	_, data = readEnvelope()
	assert.Equal(t, "9", data.Badge)
	assert.True(t, data.Updating)
}
