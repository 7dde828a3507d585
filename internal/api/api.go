// Package api serves the HTTP status surface of the fortune server: health,
// runtime statistics, the catalog listing and the announcement WebSocket.
package api

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/fortune-cookie/server/internal/broadcast"
	"github.com/fortune-cookie/server/internal/dispatch"
	"github.com/fortune-cookie/server/internal/fortune"
	"github.com/fortune-cookie/server/internal/session"
	"github.com/fortune-cookie/server/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// Deps are the live server components the API reports on. Hub and Emitter
// may be nil when their features are disabled.
type Deps struct {
	Registry   *session.Registry
	Catalog    *fortune.Catalog
	Dispatcher *dispatch.Dispatcher
	Hub        *ws.Hub
	Emitter    *broadcast.Emitter
}

type API struct {
	deps    Deps
	started time.Time
	proc    *process.Process
	log     zerolog.Logger
}

func New(deps Deps, log zerolog.Logger) *API {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("process metrics unavailable")
		proc = nil
	}
	return &API{
		deps:    deps,
		started: time.Now(),
		proc:    proc,
		log:     log,
	}
}

// Router builds the gin engine with every route registered.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(a.log))
	r.Use(gin.Recovery())

	r.GET("/healthz", a.health)
	r.GET("/ws", a.websocket)

	api := r.Group("/api")
	api.GET("/stats", a.stats)
	api.GET("/fortunes", a.fortunes)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, NotFound(""))
	})
	return r
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type CatalogStats struct {
	Size     int            `json:"size"`
	ByRarity map[string]int `json:"byRarity"`
}

type BroadcastStats struct {
	Sent        int64  `json:"sent"`
	Last        string `json:"last,omitempty"`
	Subscribers int    `json:"subscribers"`
}

type ProcessStats struct {
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Goroutines int     `json:"goroutines"`
}

type StatsResponse struct {
	Sessions      int            `json:"sessions"`
	SessionIDs    []int          `json:"sessionIds"`
	Catalog       CatalogStats   `json:"catalog"`
	Requests      dispatch.Stats `json:"requests"`
	Broadcast     BroadcastStats `json:"broadcast"`
	UptimeSeconds float64        `json:"uptimeSeconds"`
	Process       ProcessStats   `json:"process"`
}

func (a *API) stats(c *gin.Context) {
	ids := a.deps.Registry.IDs()

	counts := a.deps.Catalog.CountByRarity()
	byRarity := make(map[string]int, len(fortune.Rarities))
	for _, r := range fortune.Rarities {
		byRarity[r.String()] = counts[r]
	}

	resp := StatsResponse{
		Sessions:   len(ids),
		SessionIDs: ids,
		Catalog: CatalogStats{
			Size:     a.deps.Catalog.Len(),
			ByRarity: byRarity,
		},
		UptimeSeconds: time.Since(a.started).Seconds(),
		Process: ProcessStats{
			Goroutines: runtime.NumGoroutine(),
		},
	}
	if a.deps.Dispatcher != nil {
		resp.Requests = a.deps.Dispatcher.Stats()
	}
	if a.deps.Emitter != nil {
		resp.Broadcast.Sent = a.deps.Emitter.Sent()
		resp.Broadcast.Last = a.deps.Emitter.Last()
	}
	if a.deps.Hub != nil {
		resp.Broadcast.Subscribers = a.deps.Hub.ClientCount()
	}

	if a.proc != nil {
		if mem, err := a.proc.MemoryInfo(); err == nil {
			resp.Process.RSSBytes = mem.RSS
		} else {
			a.log.Debug().Err(err).Msg("read process memory failed")
		}
		if pct, err := a.proc.CPUPercent(); err == nil {
			resp.Process.CPUPercent = pct
		} else {
			a.log.Debug().Err(err).Msg("read process cpu failed")
		}
	}

	c.JSON(http.StatusOK, resp)
}

type FortunesResponse struct {
	Count    int               `json:"count"`
	Fortunes []fortune.Fortune `json:"fortunes"`
}

func (a *API) fortunes(c *gin.Context) {
	var rarity *fortune.Rarity
	if name := c.Query("rarity"); name != "" {
		r, ok := fortune.LookupRarity(name)
		if !ok {
			c.JSON(http.StatusBadRequest, BadRequest("Unknown rarity.", gin.H{"rarity": name}))
			return
		}
		rarity = &r
	}

	list := a.deps.Catalog.Filter(c.Query("category"), rarity)
	if list == nil {
		list = []fortune.Fortune{}
	}
	c.JSON(http.StatusOK, FortunesResponse{Count: len(list), Fortunes: list})
}

func (a *API) websocket(c *gin.Context) {
	if a.deps.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, Unavailable("Announcements are disabled."))
		return
	}
	a.deps.Hub.ServeHTTP(c.Writer, c.Request)
}
