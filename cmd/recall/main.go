// Command recall runs the memory-backed assistant as an interactive chat,
// an HTTP/gRPC server, or a one-shot memory export.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/becomeliminal/nim-recall/config"
	"github.com/becomeliminal/nim-recall/observability"
)

const usage = `usage: recall <command> [flags]

commands:
  chat            interactive chat in the terminal (default)
  serve           run the HTTP, WebSocket and gRPC health servers
  export <file>   write every memory to a JSON file
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "recall:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("recall", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.Usage = func() { fmt.Fprint(stdout, usage) }
	configFile := fs.String("config", "", "YAML config file (overrides CONFIG_FILE)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configFile != "" {
		if err := os.Setenv("CONFIG_FILE", *configFile); err != nil {
			return err
		}
	}

	cmd, rest := "chat", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	if cmd == "help" {
		fs.Usage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// The REPL owns stdout, so chat logs go to stderr.
	logOut := io.Writer(os.Stderr)
	if cmd == "serve" {
		logOut = stdout
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, logOut)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	switch cmd {
	case "chat":
		return runChat(ctx, a, stdin, stdout)
	case "serve":
		return runServe(ctx, a)
	case "export":
		if len(rest) != 1 {
			return fmt.Errorf("export needs exactly one file argument")
		}
		if err := a.memory.ExportFile(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Memories exported to %s\n", rest[0])
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
