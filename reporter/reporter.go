// Package reporter prints human-facing run lifecycle notices. Nothing in
// the protocol depends on a Reporter running: it is purely cosmetic, the
// Go equivalent of the terminal-link/chalk-highlighted "workflow started"
// line a Node CLI would print.
package reporter

import "github.com/fatih/color"

// Reporter surfaces notable run lifecycle events to a human watching the
// process's stdout.
type Reporter interface {
	// RunStarted is called for every run on its first attempt (attempt 0),
	// with the dashboard URL from the registration record.
	RunStarted(dashboardURL string)
}

// NopReporter discards every notice. It is the default when no Reporter
// is configured.
type NopReporter struct{}

// RunStarted implements Reporter.
func (NopReporter) RunStarted(string) {}

// ColorReporter prints a highlighted one-line notice, colored when stdout
// is a terminal and plain otherwise (fatih/color degrades automatically).
type ColorReporter struct{}

// RunStarted implements Reporter.
func (ColorReporter) RunStarted(dashboardURL string) {
	bold := color.New(color.FgCyan, color.Bold)
	bold.Printf("Workflow run started — dashboard: %s\n", dashboardURL)
}
