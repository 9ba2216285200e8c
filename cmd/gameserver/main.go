// Package main provides the tic-tac-toe server binary: a TCP line-protocol
// listener, an optional WebSocket listener, and a gRPC admin health endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/frontend/handlers"
	"github.com/cory-johannsen/tictactoe/internal/frontend/tcp"
	"github.com/cory-johannsen/tictactoe/internal/frontend/ws"
	"github.com/cory-johannsen/tictactoe/internal/game/room"
	"github.com/cory-johannsen/tictactoe/internal/observability"
	"github.com/cory-johannsen/tictactoe/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	printConfig := flag.Bool("print-config", false, "print the effective configuration as YAML and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if *printConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			log.Fatalf("dumping config: %v", err)
		}
		fmt.Print(string(out))
		os.Exit(0)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("addr", cfg.Listener.Addr()),
		zap.Ints("grid_sizes", cfg.Game.GridSizes),
	)

	registry := room.NewRegistry(logger.Named("registry"))
	handler := handlers.NewGameHandler(cfg.Game, registry, logger.Named("session"))
	acceptor := tcp.NewAcceptor(cfg.Listener, handler, logger.Named("tcp"))

	lifecycle := server.NewLifecycle(logger)

	var admin *server.Admin
	if cfg.Admin.Enabled {
		admin = server.NewAdmin(cfg.Admin.Addr(), logger.Named("admin"))
		lifecycle.Add("admin", server.Optional("admin", admin, logger))
		lifecycle.OnShutdown("health", func() { admin.SetServing(false) })
	}

	if cfg.WebSocket.Enabled {
		wsServer := ws.NewServer(cfg.WebSocket, cfg.Listener, handler, logger.Named("ws"))
		lifecycle.Add("websocket", server.Optional("websocket", &server.FuncService{
			StartFn: wsServer.ListenAndServe,
			StopFn:  wsServer.Stop,
		}, logger))
	}

	lifecycle.Add("game", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", cfg.Listener.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.Listener.Addr(), err)
			}
			if admin != nil {
				admin.SetServing(true)
			}
			return acceptor.Serve(lis)
		},
		StopFn: acceptor.Stop,
	})

	lifecycle.OnShutdown("sessions", handler.Shutdown)

	logger.Info("game server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
