package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaminalder/tictactoe-web/internal/app"
	"github.com/jaminalder/tictactoe-web/internal/bot"
	"github.com/jaminalder/tictactoe-web/internal/domain"
	"github.com/jaminalder/tictactoe-web/internal/history"
	"github.com/jaminalder/tictactoe-web/internal/storage"
)

func newTestServer(t *testing.T) (*app.Service, http.Handler) {
	t.Helper()
	rec, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	s := app.NewService(storage.NewMemory(), bot.NewSeeded(1), app.Options{
		ThinkDelay: time.Millisecond,
		Recorder:   rec,
	})
	h := NewServer(s, nil)
	return s, h
}

// sessionCookie opens a session through the index page and returns its cookie.
func sessionCookie(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	for _, c := range rr.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("expected %s cookie to be set", cookieName)
	return nil
}

func post(t *testing.T, h http.Handler, path string, c *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(c)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	return rr
}

func TestIndexPage(t *testing.T) {
	svc, h := newTestServer(t)
	c := sessionCookie(t, h)

	_, err := svc.Get(context.Background(), c.Value)
	require.NoError(t, err, "index should create the session")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(c)
	h.ServeHTTP(rr, req)
	body := rr.Body.String()
	assert.Contains(t, body, `id="board"`)
	assert.Contains(t, body, `hx-ext="sse"`)
	assert.Contains(t, body, "/events")
	assert.Equal(t, 9, strings.Count(body, `class="cell"`))
	assert.Empty(t, rr.Result().Cookies(), "existing cookie is reused")
}

func TestMalformedCookieIsReplaced(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "not-a-uuid"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, rr.Result().Cookies(), 1)
	assert.True(t, app.ValidID(rr.Result().Cookies()[0].Value))
}

func TestCellEndpointAppliesMove(t *testing.T) {
	svc, h := newTestServer(t)
	c := sessionCookie(t, h)

	rr := post(t, h, "/cell", c, url.Values{"index": {"4"}})
	body := rr.Body.String()
	assert.Contains(t, body, `id="board"`)
	assert.Contains(t, body, ">X</button>")
	assert.Contains(t, body, "color:#e74c3c")

	gs, err := svc.Get(context.Background(), c.Value)
	require.NoError(t, err)
	assert.Equal(t, domain.X, gs.Session.Board[4])
	assert.Equal(t, domain.O, gs.Session.Current)
}

func TestCellEndpointIgnoresInvalidInput(t *testing.T) {
	svc, h := newTestServer(t)
	c := sessionCookie(t, h)
	post(t, h, "/cell", c, url.Values{"index": {"0"}})

	for _, idx := range []string{"", "abc", "-1", "9", "0"} {
		rr := post(t, h, "/cell", c, url.Values{"index": {idx}})
		assert.Contains(t, rr.Body.String(), `id="board"`, "index %q", idx)
	}

	gs, err := svc.Get(context.Background(), c.Value)
	require.NoError(t, err)
	assert.Equal(t, 1, gs.Session.Board.Count())
	assert.Equal(t, domain.O, gs.Session.Current)
}

func TestWinMessageAndHighlight(t *testing.T) {
	_, h := newTestServer(t)
	c := sessionCookie(t, h)

	var rr *httptest.ResponseRecorder
	for _, idx := range []string{"0", "3", "1", "4", "2"} {
		rr = post(t, h, "/cell", c, url.Values{"index": {idx}})
	}
	body := rr.Body.String()
	assert.Contains(t, body, "Player X wins!")
	assert.Equal(t, 3, strings.Count(body, "background-color:#fad7d4"))
	assert.NotContains(t, body, `hx-post="/cell"`, "no cell is playable after a win")
	assert.Contains(t, body, "X 1 &middot; O 0 &middot; Draws 0")

	rr = post(t, h, "/reset", c, nil)
	body = rr.Body.String()
	assert.NotContains(t, body, "wins!")
	assert.Equal(t, 9, strings.Count(body, `hx-post="/cell"`))
}

func TestModeEndpoint(t *testing.T) {
	svc, h := newTestServer(t)
	c := sessionCookie(t, h)
	post(t, h, "/cell", c, url.Values{"index": {"4"}})

	rr := post(t, h, "/mode", c, url.Values{"mode": {"ai"}})
	assert.Contains(t, rr.Body.String(), `class="active">Play vs AI`)

	gs, err := svc.Get(context.Background(), c.Value)
	require.NoError(t, err)
	assert.True(t, gs.Session.VsAI)
	assert.Equal(t, domain.Idle, gs.Session.State())

	// unknown modes are ignored
	post(t, h, "/mode", c, url.Values{"mode": {"solo"}})
	gs, err = svc.Get(context.Background(), c.Value)
	require.NoError(t, err)
	assert.True(t, gs.Session.VsAI)
}

func TestAIAnswersAfterDelay(t *testing.T) {
	svc, h := newTestServer(t)
	c := sessionCookie(t, h)
	post(t, h, "/mode", c, url.Values{"mode": {"ai"}})

	rr := post(t, h, "/cell", c, url.Values{"index": {"4"}})
	assert.NotContains(t, rr.Body.String(), `hx-post="/cell"`, "board is locked while the opponent thinks")

	require.Eventually(t, func() bool {
		gs, err := svc.Get(context.Background(), c.Value)
		return err == nil && gs.Session.Board.Count() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStateEndpoint(t *testing.T) {
	_, h := newTestServer(t)
	c := sessionCookie(t, h)
	for _, idx := range []string{"0", "3", "1", "4", "2"} {
		post(t, h, "/cell", c, url.Values{"index": {idx}})
	}

	req := httptest.NewRequest("GET", "/state", nil)
	req.AddCookie(c)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var got struct {
		Mode        string   `json:"mode"`
		State       string   `json:"state"`
		Board       []string `json:"board"`
		Current     string   `json:"current"`
		Active      bool     `json:"active"`
		Message     string   `json:"message"`
		WinningLine []int    `json:"winning_line"`
		Recent      []struct {
			Mode   string `json:"mode"`
			Winner string `json:"winner"`
			Line   string `json:"line"`
			Moves  int    `json:"moves"`
		} `json:"recent"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "two", got.Mode)
	assert.Equal(t, "won", got.State)
	assert.Equal(t, []string{"X", "X", "X", "O", "O", "", "", "", ""}, got.Board)
	assert.Equal(t, "X", got.Current)
	assert.False(t, got.Active)
	assert.Equal(t, "Player X wins!", got.Message)
	assert.Equal(t, []int{0, 1, 2}, got.WinningLine)

	require.Len(t, got.Recent, 1)
	assert.Equal(t, "two", got.Recent[0].Mode)
	assert.Equal(t, "X", got.Recent[0].Winner)
	assert.Equal(t, "0,1,2", got.Recent[0].Line)
	assert.Equal(t, 5, got.Recent[0].Moves)
}

func TestStateEndpointWithoutGames(t *testing.T) {
	_, h := newTestServer(t)
	c := sessionCookie(t, h)

	req := httptest.NewRequest("GET", "/state", nil)
	req.AddCookie(c)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"recent":[]`)
}

func TestFormValidation(t *testing.T) {
	v := newValidator()
	index := func(i int) *int { return &i }

	cells := []struct {
		name  string
		index *int
		ok    bool
	}{
		{"missing", nil, false},
		{"first", index(0), true},
		{"last", index(8), true},
		{"negative", index(-1), false},
		{"past end", index(9), false},
	}
	for _, tc := range cells {
		t.Run("cell "+tc.name, func(t *testing.T) {
			err := v.Struct(cellForm{Index: tc.index})
			assert.Equal(t, tc.ok, err == nil, "error: %v", err)
		})
	}

	for mode, ok := range map[string]bool{"two": true, "ai": true, "solo": false, "": false} {
		err := v.Struct(modeForm{Mode: domain.Mode(mode)})
		assert.Equal(t, ok, err == nil, "mode %q: %v", mode, err)
	}
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestEventsEndpointSSEHeaders(t *testing.T) {
	_, h := newTestServer(t)
	c := sessionCookie(t, h)

	req := httptest.NewRequest("GET", "/events", nil)
	req.AddCookie(c)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Result().Header.Get("Content-Type"), "text/event-stream"))
}

func TestEventsStreamPushesOpponentMove(t *testing.T) {
	_, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := sessionCookie(t, h)
	post(t, h, "/mode", c, url.Values{"mode": {"ai"}})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.AddCookie(c)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	post(t, h, "/cell", c, url.Values{"index": {"4"}})

	// read until the opponent's O shows up in a pushed board
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 4096)
	for !strings.Contains(string(buf), ">O</button>") {
		n, err := resp.Body.Read(chunk)
		require.NoError(t, err)
		buf = append(buf, chunk[:n]...)
	}
	assert.Contains(t, string(buf), "event: board")
}
