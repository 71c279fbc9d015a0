package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"battleship/broker/internal/auth"
	"battleship/broker/internal/config"
	"battleship/broker/internal/gameplay"
	httpapi "battleship/broker/internal/http"
	"battleship/broker/internal/logging"
	"battleship/broker/internal/replay"
	"battleship/broker/internal/server"
	"battleship/broker/internal/supervisor"
	"battleship/broker/internal/wire"
)

// supervisorHz is how often the matchmaking supervisor inspects the queue.
const supervisorHz = 2.0

func main() {
	cfg, err := config.Load()
	if err != nil {
		println("battleship: invalid configuration: " + err.Error())
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		println("battleship: failed to initialise logging: " + err.Error())
		os.Exit(1)
	}
	defer logger.Sync()

	fleet, err := gameplay.Fleet(cfg.ShipCatalogue)
	if err != nil {
		logger.Fatal("invalid ship catalogue", logging.Error(err))
		return
	}

	var recorder *replay.Recorder
	var cleaner *replay.Cleaner
	if cfg.ReplayDir != "" {
		recorder, err = replay.NewRecorder(cfg.ReplayDir, time.Now)
		if err != nil {
			logger.Warn("replay recording disabled", logging.Error(err))
		} else {
			cleaner = replay.NewCleaner(cfg.ReplayDir, replay.RetentionPolicy{MaxMatches: 200, MaxAge: 30 * 24 * time.Hour}, logger)
		}
	}

	credentials := auth.NewStore()
	hub := server.NewHub(cfg, logger, credentials, fleet, recorder)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cleaner != nil {
		go cleaner.Run(ctx, time.Hour)
	}

	loop := supervisor.NewLoop(supervisorHz, hub.Tick)
	loop.Start(ctx)
	defer loop.Stop()

	adminMux := http.NewServeMux()
	handlerSet := httpapi.NewHandlerSet(httpapi.Options{
		Logger:     logger,
		Readiness:  hub,
		Stats:      hub.Stats,
		Replay:     httpapi.ReplayDumperFunc(hub.DumpReplay),
		AdminToken: cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(
			cfg.ReplayDumpWindow, cfg.ReplayDumpBurst, time.Now),
		ReplayStats: hub.ReplayStats,
		ReplayStorage: func() replay.StorageStats {
			if cleaner == nil {
				return replay.StorageStats{}
			}
			return cleaner.Stats()
		},
		Match: hub,
		TickStats: func() httpapi.TickSnapshot {
			snapshot := hub.TickStats()
			return httpapi.TickSnapshot{
				Samples: snapshot.Samples,
				Average: snapshot.Average,
				Max:     snapshot.Max,
				Last:    snapshot.Last,
			}
		},
	})
	handlerSet.Register(adminMux)
	adminServer := &http.Server{Addr: cfg.AdminAddress, Handler: adminMux}
	go func() {
		logger.Info("admin http listening", logging.String("address", listenerURL(cfg.AdminAddress, false)))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin http server failed", logging.Error(err))
		}
	}()

	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		logger.Fatal("failed to listen on game port", logging.String("address", cfg.Address), logging.Error(err))
		return
	}
	logger.Info("battleship server listening", logging.String("address", normaliseHostPort(cfg.Address)))

	key := wire.DeriveKey(cfg.SharedSecret)

	go acceptLoop(ctx, listener, hub, key, cfg, logger)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections")
	hub.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = adminServer.Shutdown(shutdownCtx)
	shutdownCancel()
	_ = listener.Close()
}

func acceptLoop(ctx context.Context, listener net.Listener, hub *server.Hub, key [32]byte, cfg *config.Config, logger *logging.Logger) {
	var activeConns int
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			logger.Warn("accept failed", logging.Error(err))
			continue
		}
		if cfg.MaxClients > 0 && activeConns >= cfg.MaxClients {
			_ = conn.Close()
			continue
		}
		activeConns++
		handler, err := server.NewHandler(hub, conn, key, logger)
		if err != nil {
			logger.Warn("failed to initialise connection codec", logging.Error(err))
			_ = conn.Close()
			activeConns--
			continue
		}
		go func() {
			defer func() { activeConns-- }()
			handler.Serve()
		}()
	}
}
