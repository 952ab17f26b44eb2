package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"auctionhouse/config"
	"auctionhouse/core/events"
	"auctionhouse/gateway"
	"auctionhouse/native/auction"
	"auctionhouse/observability/logging"
	"auctionhouse/rpc"
	"auctionhouse/state"
	"auctionhouse/storage"
)

const shutdownTimeout = 10 * time.Second

// nodeEmitter records every engine event in the persistent history and logs
// it for operators.
type nodeEmitter struct {
	state *state.Manager
	log   *slog.Logger
}

func (n nodeEmitter) Emit(evt events.Event) {
	keyed, ok := evt.(auction.KeyedEvent)
	if !ok || keyed.Event() == nil {
		return
	}
	id := keyed.AuctionID()
	if err := n.state.AppendEvent(id, keyed.Event()); err != nil {
		n.log.Error("append event history", slog.Any("error", err), slog.String("auctionId", hex.EncodeToString(id[:])))
	}
	n.log.Info("auction event",
		slog.String("type", keyed.EventType()),
		slog.String("auctionId", hex.EncodeToString(id[:])),
	)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("AUCTION_ENV"))
	logger := logging.Setup("auctiond", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open database", slog.Any("error", err), slog.String("dataDir", cfg.DataDir))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)

	engine := auction.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(manager)
	engine.SetCustody(manager)
	engine.SetEmitter(nodeEmitter{state: manager, log: logger})
	if cfg.ExtensionWindowSeconds > 0 {
		engine.SetExtensionWindow(cfg.ExtensionWindowSeconds)
	}

	rpcServer := rpc.NewServer(engine, manager)
	gatewayHandler := gateway.New(engine, manager)

	gatewaySrv := &http.Server{Addr: cfg.GatewayAddress, Handler: gatewayHandler}
	go func() {
		logger.Info("gateway listening", slog.String("address", cfg.GatewayAddress))
		if err := gatewaySrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway listen", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	rpcSrv := &http.Server{Addr: cfg.RPCAddress, Handler: rpcServer.Handler()}
	go func() {
		logger.Info("JSON-RPC listening", slog.String("address", cfg.RPCAddress))
		if err := rpcSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc listen", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down auctiond")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rpcSrv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	if err := gatewaySrv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
