package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eringen/pagetrack"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "stats", "clear":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Usage: pagetrack %s <visitor-id>\n", os.Args[1])
			os.Exit(1)
		}
		err = runVisitor(os.Stdout, os.Args[1], os.Args[2])
	case "version":
		fmt.Printf("pagetrack %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := pagetrack.LoadConfig()
	if err != nil {
		return err
	}
	app := pagetrack.New(cfg)
	defer app.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		app.Echo.Close()
	}()

	return app.Start()
}

// runVisitor prints or clears one visitor's log in a server-side backend.
func runVisitor(w io.Writer, cmd, visitorID string) error {
	cfg, err := pagetrack.LoadConfig()
	if err != nil {
		return err
	}
	backend, err := pagetrack.OpenBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	visits, err := pagetrack.NewVisitLog(cfg, pagetrack.VisitorStore(backend, visitorID))
	if err != nil {
		return err
	}

	if cmd == "clear" {
		if err := visits.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(w, "Cleared visits for %s\n", visitorID)
		return nil
	}

	stats, err := visits.Stats()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func printUsage() {
	fmt.Println(`pagetrack - page analytics with a local visit history

Usage:
  pagetrack <command> [arguments]

Commands:
  serve               Start the HTTP server
  stats <visitor-id>  Print a visitor's statistics as JSON
  clear <visitor-id>  Delete a visitor's visit history
  version             Print the pagetrack version
  help                Show this help message

Configuration is read from PAGETRACK_* environment variables and .env.`)
}
