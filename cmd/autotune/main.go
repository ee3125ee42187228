package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/logger"
)

const usage = `usage: autotune <command> [flags]

Commands:
  optimize   search iso3dfd build and run parameters for maximum throughput
  energy     measure DRAM and package energy of one or more configurations
  results    print stored optimization trials
  serve      run the tuning daemon (gRPC and HTTP)

Run "autotune <command> -h" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return flag.ErrHelp
	}

	switch args[0] {
	case "optimize":
		return runOptimize(ctx, args[1:], stdout, stderr)
	case "energy":
		return runEnergy(ctx, args[1:], stdout, stderr)
	case "results":
		return runResults(ctx, args[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// loadConfig reads path, or returns the defaults when path is empty
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

// setupLogging installs the configured logger as the default. An explicit
// level flag wins over the config file.
func setupLogging(cfg *config.Config, levelFlag string, out io.Writer) {
	level := cfg.LogLevel
	if levelFlag != "" {
		level = levelFlag
	}
	logger.SetDefault(logger.NewFormat(cfg.LogFormat, level, out))
}
