package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/semanticarchitectures/Framework/pkg/config"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	cfg := config.Load()
	setupLogging(cfg, stderr)

	switch args[1] {
	case "run":
		return runRunCmd(args[2:], cfg, stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], cfg, stdout, stderr)
	case "export":
		return runExportCmd(args[2:], cfg, stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "daosim %s\n", Version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func setupLogging(cfg *config.Config, w io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorRed   = "\033[31m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sDAO Simulator %s%s\n", ColorBold+ColorBlue, Version, ColorReset)
	_, _ = fmt.Fprintf(w, "%sProposals become missions. Missions become reputation.%s\n", ColorGray, ColorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	_, _ = fmt.Fprintln(w, "  daosim <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "SIMULATION")
	printCommand(w, "run", "Run a scenario end to end (-scenario, -seed, -days, -json)")

	printSection(w, "EVENT LOG")
	printCommand(w, "verify", "Verify a stored event chain (-db)")
	printCommand(w, "export", "Archive a stored event chain (-db)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-10s%s %s\n", ColorGreen, name, ColorReset, desc)
}
