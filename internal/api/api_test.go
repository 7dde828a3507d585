package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortune-cookie/server/internal/broadcast"
	"github.com/fortune-cookie/server/internal/dispatch"
	"github.com/fortune-cookie/server/internal/fortune"
	"github.com/fortune-cookie/server/internal/session"
	"github.com/fortune-cookie/server/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var seed = []fortune.Fortune{
	{Category: "Wise", Rarity: fortune.Rare, Text: "Listen twice"},
	{Category: "Wise", Rarity: fortune.Legendary, Text: "Patience wins"},
	{Category: "Social", Rarity: fortune.Common, Text: "Call home"},
}

type fixture struct {
	registry *session.Registry
	catalog  *fortune.Catalog
	hub      *ws.Hub
	emitter  *broadcast.Emitter
	router   *gin.Engine
}

func newFixture(t *testing.T, withHub bool) *fixture {
	t.Helper()
	f := &fixture{
		registry: session.NewRegistry(session.DefaultBuffer),
		catalog:  fortune.NewCatalog(seed),
	}
	deps := Deps{
		Registry:   f.registry,
		Catalog:    f.catalog,
		Dispatcher: dispatch.New(f.registry, f.catalog, zerolog.Nop()),
	}
	if withHub {
		f.hub = ws.NewHub(0, zerolog.Nop())
		t.Cleanup(f.hub.Close)
		f.emitter = broadcast.NewEmitter(fortune.NewSelector(f.catalog, nil), time.Hour, zerolog.Nop(), f.hub)
		deps.Hub = f.hub
		deps.Emitter = f.emitter
	}
	f.router = New(deps, zerolog.Nop()).Router()
	return f
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	w := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStats(t *testing.T) {
	f := newFixture(t, true)
	a := f.registry.Register(io.Discard)
	b := f.registry.Register(io.Discard)
	defer f.registry.Unregister(a.ID)
	defer f.registry.Unregister(b.ID)
	f.emitter.Emit(context.Background())

	w := f.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Sessions)
	assert.Equal(t, []int{a.ID, b.ID}, resp.SessionIDs)
	assert.Equal(t, 3, resp.Catalog.Size)
	assert.Equal(t, map[string]int{"Common": 1, "Rare": 1, "Legendary": 1}, resp.Catalog.ByRarity)
	assert.Equal(t, int64(1), resp.Broadcast.Sent)
	assert.True(t, strings.HasPrefix(resp.Broadcast.Last, broadcast.Prefix))
	assert.Equal(t, 0, resp.Broadcast.Subscribers)
	assert.Greater(t, resp.Process.Goroutines, 0)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, 0.0)
}

func TestStatsEmptyRegistry(t *testing.T) {
	f := newFixture(t, false)
	w := f.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sessionIds":[]`)
}

func TestFortunes(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  int
		texts []string
	}{
		{"All", "", http.StatusOK, []string{"Listen twice", "Patience wins", "Call home"}},
		{"Category", "?category=wise", http.StatusOK, []string{"Listen twice", "Patience wins"}},
		{"CategoryAndRarity", "?category=WISE&rarity=legendary", http.StatusOK, []string{"Patience wins"}},
		{"NoMatch", "?category=Nowhere", http.StatusOK, []string{}},
		{"BadRarity", "?rarity=mythic", http.StatusBadRequest, nil},
	}

	f := newFixture(t, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get(t, "/api/fortunes"+tt.query)
			require.Equal(t, tt.code, w.Code)
			if tt.code != http.StatusOK {
				var errResp ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
				assert.Equal(t, tt.code, errResp.Status)
				return
			}

			var resp FortunesResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, len(tt.texts), resp.Count)
			texts := make([]string, 0, len(resp.Fortunes))
			for _, fo := range resp.Fortunes {
				texts = append(texts, fo.Text)
			}
			assert.Equal(t, tt.texts, texts)
		})
	}
}

func TestNoRoute(t *testing.T) {
	f := newFixture(t, false)
	w := f.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebSocketDisabled(t *testing.T) {
	f := newFixture(t, false)
	w := f.get(t, "/ws")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebSocketAnnouncements(t *testing.T) {
	f := newFixture(t, true)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	f.emitter.Emit(context.Background())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    ws.MessageType         `json:"type"`
		Payload ws.AnnouncementPayload `json:"payload"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(data)).Decode(&msg))
	assert.Equal(t, ws.MsgAnnouncement, msg.Type)
	assert.Equal(t, f.emitter.Last(), msg.Payload.Text)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	r := gin.New()
	r.Use(RequestLogger(log))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok?x=1", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "/ok?x=1", first["path"])
	assert.Equal(t, float64(200), first["status"])
	assert.Equal(t, "error", second["level"])
}
