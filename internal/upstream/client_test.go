package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deviantnotify/deviant-notify/internal/models"
)

const signedInCookies = "auth=secret; userinfo=__7a1e%3B%7B%22username%22%3A%22kat%22%2C%22uniqueid%22%3A%221%22%7D"

const lightPage = `<!DOCTYPE html><html><head><script>
window.__HEADER__INIT__ = { csrf: "x", requestId: "Ab12cd34" };
window.__URL_CONFIG__ = {};
</script></head><body class="theme-light no-touch"><div></div></body></html>`

func writeCookies(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestClient(t *testing.T, server *httptest.Server, cookies string) *Client {
	t.Helper()
	client, err := NewClient(server.URL, writeCookies(t, cookies), 1000)
	require.NoError(t, err)
	client.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return client
}

func TestClient_SignedInUser(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	tests := []struct {
		name    string
		cookies string
		want    string
		wantErr bool
	}{
		{name: "Signed in", cookies: signedInCookies, want: "kat"},
		{name: "No userinfo cookie", cookies: "auth=secret", wantErr: true},
		{name: "Garbage userinfo", cookies: "userinfo=%7Bnot-json", wantErr: true},
		{name: "Missing username", cookies: "userinfo=%7B%22uniqueid%22%3A%221%22%7D", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, server, tt.cookies)
			got, err := client.SignedInUser()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotSignedIn)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_MissingCookieFileIsSignedOut(t *testing.T) {
	client, err := NewClient("https://www.deviantart.com", filepath.Join(t.TempDir(), "nope.txt"), 1)
	require.NoError(t, err)

	_, err = client.SignedInUser()
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestClient_ReloadCookies(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := newTestClient(t, server, "auth=secret")
	_, err := client.SignedInUser()
	assert.ErrorIs(t, err, ErrNotSignedIn)

	require.NoError(t, os.WriteFile(client.CookieFile(), []byte(signedInCookies), 0o600))
	require.NoError(t, client.ReloadCookies())

	username, err := client.SignedInUser()
	require.NoError(t, err)
	assert.Equal(t, "kat", username)
}

func TestClient_ResolveSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, lightPath, r.URL.Path)
		cookie, err := r.Cookie("auth")
		if assert.NoError(t, err) {
			assert.Equal(t, "secret", cookie.Value)
		}
		fmt.Fprint(w, lightPage)
	}))
	defer server.Close()

	client := newTestClient(t, server, signedInCookies)
	session, err := client.ResolveSession(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Ab12cd34", session.RequestID)
	assert.Equal(t, "kat", session.Username)
	assert.Equal(t, "theme-light no-touch", session.BodyClass)
	assert.True(t, strings.HasPrefix(session.UserInfo, "__7a1e;"))
}

func TestClient_ResolveSessionErrors(t *testing.T) {
	tests := []struct {
		name       string
		page       string
		cookies    string
		parseError bool
		signedOut  bool
	}{
		{name: "Missing start marker", page: `<body>window.__URL_CONFIG__</body>`, cookies: signedInCookies, parseError: true},
		{name: "Missing end marker", page: `<body>window.__HEADER__INIT__ requestId: "abc"</body>`, cookies: signedInCookies, parseError: true},
		{name: "No request id", page: `window.__HEADER__INIT__ = {}; window.__URL_CONFIG__`, cookies: signedInCookies, parseError: true},
		{name: "Request id outside block", page: `window.__HEADER__INIT__ = {}; window.__URL_CONFIG__ requestId: "abc"`, cookies: signedInCookies, parseError: true},
		{name: "No userinfo cookie", page: lightPage, cookies: "auth=secret", signedOut: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.page)
			}))
			defer server.Close()

			client := newTestClient(t, server, tt.cookies)
			_, err := client.ResolveSession(context.Background())
			require.Error(t, err)

			var parseErr *ParseError
			assert.Equal(t, tt.parseError, errors.As(err, &parseErr))
			assert.Equal(t, tt.signedOut, errors.Is(err, ErrNotSignedIn))
		})
	}
}

func TestExtractRequestID(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    string
		wantErr bool
	}{
		{name: "Plain page", page: lightPage, want: "Ab12cd34"},
		{
			name: "End marker also before the block",
			page: `<script>window.__URL_CONFIG__ = {};</script>` +
				`<script>window.__HEADER__INIT__ = { requestId: "Ff00aa11" }; window.__URL_CONFIG__ = {};</script>`,
			want: "Ff00aa11",
		},
		{
			name:    "End marker only before the block",
			page:    `window.__URL_CONFIG__ = {}; window.__HEADER__INIT__ = { requestId: "abc" };`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractRequestID(tt.page)
			if tt.wantErr {
				var parseErr *ParseError
				assert.ErrorAs(t, err, &parseErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_FetchCategoryPage(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == lightPath {
			fmt.Fprint(w, lightPage)
			return
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		assert.Equal(t, watchPath, r.URL.Path)
		fmt.Fprint(w, `{"counts":{"total":3},"settings":{"type":"polls","stacked":false},"results":[{"ts":"2024-01-01T00:00:00-0800"},{"ts":"bad"}],"hasMore":false,"cursor":"c1"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, signedInCookies)
	ctx := context.Background()

	_, err := client.FetchCategoryPage(ctx, WatchRequest(models.WatchPolls, 24))
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = client.ResolveSession(ctx)
	require.NoError(t, err)

	page, err := client.FetchCategoryPage(ctx, WatchRequest(models.WatchPolls, 24))
	require.NoError(t, err)

	assert.Equal(t, 3, page.Total)
	assert.Equal(t, "polls", page.Type)
	assert.Equal(t, "c1", page.Cursor)
	assert.Len(t, page.Results, 2)
	assert.Equal(t, "polls", gotQuery["messagetype"])
	assert.Equal(t, "false", gotQuery["stacked"])
	assert.Equal(t, "24", gotQuery["limit"])
	assert.Equal(t, "Ab12cd34-loyw3v28-1.0", gotQuery["iid"])
}

func TestClient_FetchCategoryPageStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == lightPath {
			fmt.Fprint(w, lightPage)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server, signedInCookies)
	_, err := client.ResolveSession(context.Background())
	require.NoError(t, err)

	_, err = client.FetchCategoryPage(context.Background(), NotesRequest(24, "abc"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedPage)
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		malformed bool
	}{
		{name: "Valid", body: `{"counts":{"total":1},"settings":{"type":"comments"},"results":[],"hasMore":true,"cursor":"x"}`},
		{name: "Null cursor", body: `{"counts":{"total":1},"settings":{"type":"comments"},"results":[],"hasMore":false,"cursor":null}`},
		{name: "Total is a string", body: `{"counts":{"total":"1"},"settings":{"type":"comments"},"results":[],"hasMore":false}`, malformed: true},
		{name: "Missing settings", body: `{"counts":{"total":1},"results":[],"hasMore":false}`, malformed: true},
		{name: "Results not an array", body: `{"counts":{"total":1},"settings":{"type":"x"},"results":{},"hasMore":false}`, malformed: true},
		{name: "Missing hasMore", body: `{"counts":{"total":1},"settings":{"type":"x"},"results":[]}`, malformed: true},
		{name: "HTML error page", body: `<html>sign in</html>`, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePage([]byte(tt.body))
			if tt.malformed {
				assert.ErrorIs(t, err, ErrMalformedPage)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestItem_Time(t *testing.T) {
	tests := []struct {
		ts   string
		ok   bool
		want time.Time
	}{
		{ts: "2024-01-01T00:00:00Z", ok: true, want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ts: "2024-01-01T00:00:00-0800", ok: true, want: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)},
		{ts: "1700000000", ok: true, want: time.Unix(1700000000, 0)},
		{ts: "yesterday"},
		{ts: ""},
	}

	for _, tt := range tests {
		t.Run(tt.ts, func(t *testing.T) {
			got, ok := Item{TS: tt.ts}.Time()
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got))
			}
		})
	}
}
