// Command chat is a terminal front-end for a running carenav API server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/carenav/carenav/pkg/config"
)

func main() {
	_ = config.LoadDotEnv()

	var (
		server  = flag.String("server", envOr("CARENAV_API", "http://localhost:8080"), "carenav API base URL")
		timeout = flag.Duration("timeout", 5*time.Minute, "per-request timeout, long enough for a rebuild")
	)
	flag.Parse()

	m := newModel(newAPIClient(*server, *timeout), uuid.NewString(), *timeout)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "chat:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
