package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robertcprice/agent-monitor/internal/adapter"
	"github.com/robertcprice/agent-monitor/internal/analytics"
	"github.com/robertcprice/agent-monitor/internal/bridge"
	"github.com/robertcprice/agent-monitor/internal/bus"
	"github.com/robertcprice/agent-monitor/internal/config"
	"github.com/robertcprice/agent-monitor/internal/httpapi"
	"github.com/robertcprice/agent-monitor/internal/ipc"
	"github.com/robertcprice/agent-monitor/internal/mock"
	"github.com/robertcprice/agent-monitor/internal/status"
	"github.com/robertcprice/agent-monitor/internal/store"
)

const version = "1.0"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	socketPath := flag.String("socket", "", "Override IPC socket path")
	httpHost := flag.String("http-host", "", "Override HTTP bind host")
	httpPort := flag.Int("http-port", 0, "Override HTTP port")
	bridgeSocket := flag.String("bridge-socket", "", "Override bridge socket path")
	statusFile := flag.String("status-file", "", "Override status file path")
	dataDir := flag.String("data-dir", "", "Override data directory")
	mockMode := flag.Bool("mock", false, "Generate synthetic session data")
	flag.Parse()

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
		cfg.Paths.DBPath = filepath.Join(*dataDir, "sessions.db")
		cfg.Paths.StatusFile = filepath.Join(*dataDir, "status.json")
	}
	if *socketPath != "" {
		cfg.Paths.SocketPath = *socketPath
	}
	if *bridgeSocket != "" {
		cfg.Paths.BridgeSocket = *bridgeSocket
	}
	if *statusFile != "" {
		cfg.Paths.StatusFile = *statusFile
	}
	if *httpHost != "" {
		cfg.Server.Host = *httpHost
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	st, err := store.Open(cfg.Paths.DBPath)
	if err != nil {
		log.Fatalf("open store %s: %v", cfg.Paths.DBPath, err)
	}
	defer st.Close()

	b := bus.New()
	sink := &adapter.Sink{Store: st, Bus: b}
	startedAt := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := analytics.NewManager(cfg.Analytics.MaxCallsPerHour)
	manager.SetRateLimitDisabled(cfg.Analytics.RateLimitOff)
	manager.SetSnapshotPath(filepath.Join(cfg.Paths.DataDir, "analytics.json"))
	go manager.Run(ctx, b.Subscribe(), cfg.Analytics.SnapshotInterval)

	registry := &adapter.Registry{}
	if *mockMode {
		log.Println("[main] mock mode, synthesizing sessions")
		mock.NewGenerator(sink).Start(ctx)
	} else {
		if cfg.Adapters.EnableClaude {
			registry.Register(adapter.NewClaudeAdapter(cfg.Paths.ClaudeHome, cfg.Adapters.ClaudeScanInterval, sink))
		}
		if cfg.Adapters.EnableCursor {
			registry.Register(adapter.NewCursorAdapter(cfg.Adapters.ProcessScanInterval, sink))
		}
		if cfg.Adapters.EnableAider {
			registry.Register(adapter.NewAiderAdapter(cfg.Adapters.ProcessScanInterval, sink))
		}
		if err := registry.StartAll(ctx); err != nil {
			log.Fatalf("start adapters: %v", err)
		}
		defer registry.StopAll()
	}

	ipcSrv := ipc.NewServer(cfg.Paths.SocketPath, st, sink)
	if err := ipcSrv.Start(ctx); err != nil {
		log.Fatalf("start ipc: %v", err)
	}
	defer ipcSrv.Stop()

	bridgeSrv := bridge.NewServer(cfg.Paths.BridgeSocket, st, b)
	if err := bridgeSrv.Start(ctx); err != nil {
		log.Fatalf("start bridge: %v", err)
	}
	defer bridgeSrv.Stop()

	reporter := status.NewReporter(st, manager, version, startedAt)
	writer := status.NewWriter(reporter, cfg.Paths.StatusFile, cfg.Analytics.StatusInterval)
	go writer.Run(ctx)

	httpSrv := httpapi.NewServer(cfg.Server.Host, cfg.Server.Port, st, b, manager, reporter, version)
	httpSrv.SetPrivacyFilter(cfg.Privacy.NewPrivacyFilter())
	if err := httpSrv.Start(ctx); err != nil {
		log.Fatalf("start http: %v", err)
	}
	defer httpSrv.Stop()

	log.Printf("[main] agent-monitor %s up, db=%s http=%s:%d",
		version, cfg.Paths.DBPath, cfg.Server.Host, cfg.Server.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[main] shutting down")
	cancel()
}
