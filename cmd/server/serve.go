package main

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fortune-cookie/server/internal/api"
	"github.com/fortune-cookie/server/internal/broadcast"
	"github.com/fortune-cookie/server/internal/cleanup"
	"github.com/fortune-cookie/server/internal/config"
	"github.com/fortune-cookie/server/internal/dispatch"
	"github.com/fortune-cookie/server/internal/fortune"
	"github.com/fortune-cookie/server/internal/logger"
	"github.com/fortune-cookie/server/internal/server"
	"github.com/fortune-cookie/server/internal/session"
	"github.com/fortune-cookie/server/internal/upload"
	"github.com/fortune-cookie/server/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(serveFlags.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(serveFlags.configPath)
	if err != nil {
		return errors.Wrap(err, "load config failed")
	}
	if serveFlags.port > 0 {
		cfg.Server.Port = serveFlags.port
	}
	if serveFlags.logLevel != "" {
		cfg.Log.Level = serveFlags.logLevel
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	return serve(cmd.Context(), cfg, log)
}

// serve runs every component until a termination signal arrives or ctx ends.
func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	seed, err := fortune.LoadFile(cfg.Catalog.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Catalog.Path).Msg("seed catalog unreadable, using the default fortune")
		seed = nil
	}
	catalog := fortune.NewCatalog(seed)
	log.Info().Int("fortunes", catalog.Len()).Str("path", cfg.Catalog.Path).Msg("catalog loaded")

	registry := session.NewRegistry(cfg.Server.SendBuffer)
	dispatcher := dispatch.New(registry, catalog,
		log.With().Str("component", "dispatch").Logger(),
		dispatch.WithFramer(upload.NewFramer(cfg.Server.MaxFrameSize)),
	)

	tcp := server.New(
		net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		dispatcher,
		log.With().Str("component", "server").Logger(),
	)
	if err := tcp.Listen(); err != nil {
		return err
	}

	ops := map[string]cleanup.Operation{
		"tcp": tcp.Shutdown,
	}

	var hub *ws.Hub
	var publishers []broadcast.Publisher
	if cfg.HTTP.Enabled {
		hub = ws.NewHub(cfg.HTTP.MaxWSConnections, log.With().Str("component", "ws").Logger())
		publishers = append(publishers, hub)
	}

	var emitter *broadcast.Emitter
	var bg sync.WaitGroup
	if cfg.Broadcast.Enabled {
		mc, err := broadcast.DialMulticast(cfg.Broadcast.Group, cfg.Broadcast.Port, broadcast.MulticastOptions{
			TTL:       cfg.Broadcast.TTL,
			Loopback:  cfg.Broadcast.Loopback,
			Interface: cfg.Broadcast.Interface,
		})
		if err != nil {
			log.Error().Err(err).Msg("multicast publisher unavailable")
		} else {
			publishers = append(publishers, mc)
		}

		emitter = broadcast.NewEmitter(fortune.NewSelector(catalog, nil), cfg.Broadcast.Interval,
			log.With().Str("component", "broadcast").Logger(), publishers...)
		emitCtx, stopEmitter := context.WithCancel(ctx)
		bg.Add(1)
		go func() {
			defer bg.Done()
			emitter.Run(emitCtx)
		}()

		ops["broadcast"] = func(context.Context) error {
			stopEmitter()
			bg.Wait()
			if mc != nil {
				return mc.Close()
			}
			return nil
		}
	}

	if cfg.HTTP.Enabled {
		if log.GetLevel() > zerolog.DebugLevel {
			gin.SetMode(gin.ReleaseMode)
		}
		router := api.New(api.Deps{
			Registry:   registry,
			Catalog:    catalog,
			Dispatcher: dispatcher,
			Hub:        hub,
			Emitter:    emitter,
		}, log.With().Str("component", "http").Logger()).Router()

		httpSrv := &http.Server{
			Addr:    net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
			Handler: router,
		}
		go func() {
			log.Info().Str("addr", httpSrv.Addr).Msg("http server listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server failed")
			}
		}()

		ops["http"] = func(ctx context.Context) error {
			hub.Close()
			return httpSrv.Shutdown(ctx)
		}
	}

	wait := cleanup.GracefulShutdown(ctx, log, shutdownTimeout, ops)

	serveErr := tcp.Serve(ctx)
	cancel()
	<-wait
	log.Info().Msg("fortune server stopped")
	return serveErr
}
