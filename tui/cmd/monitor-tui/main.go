// Command monitor-tui is the terminal dashboard for the agent monitor
// daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/robertcprice/agent-monitor/tui/internal/app"
	"github.com/robertcprice/agent-monitor/tui/internal/client"
)

func main() {
	var (
		serverURL  = flag.String("url", "", "daemon base URL (default http://127.0.0.1:8765)")
		configPath = flag.String("config", client.DefaultConfigPath(), "path to TUI config file")
		noLive     = flag.Bool("no-live", false, "disable the WebSocket push connection")
	)
	flag.Parse()

	cfg, err := client.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *noLive {
		cfg.DisableLiveUpdate = true
	}

	httpClient := client.NewHTTPClient(cfg.ServerURL)

	var ws *client.WSClient
	if !cfg.DisableLiveUpdate {
		ws = client.NewWSClient(deriveWSURL(cfg.ServerURL))
	}

	p := tea.NewProgram(app.New(cfg, httpClient, ws), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// deriveWSURL maps the HTTP base URL to the daemon's push endpoint.
func deriveWSURL(base string) string {
	ws := base
	switch {
	case strings.HasPrefix(base, "https://"):
		ws = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		ws = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return strings.TrimRight(ws, "/") + "/api/ws"
}
