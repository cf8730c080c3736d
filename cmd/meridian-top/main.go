// Command meridian-top is the interactive status viewer: it drives the
// bubbletea dashboard in internal/tui against a running proxy's
// Observability HTTP API.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/relaymcp/meridian/internal/env"
	"github.com/relaymcp/meridian/internal/tui"
)

func main() {
	baseURL := env.GetEnvOrDefault("MERIDIAN_STATUS_URL", "http://localhost:19841")
	if len(os.Args) > 1 {
		baseURL = os.Args[1]
	}

	program := tea.NewProgram(tui.New(baseURL))
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "meridian-top: %v\n", err)
		os.Exit(1)
	}
}
