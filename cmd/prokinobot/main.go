// Command prokinobot runs the movie distribution bot.
//
// Usage:
//
//	prokinobot [flags]            run the bot
//	prokinobot migrate [-config]  apply database migrations and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibrohim2505/prokinobot/internal/app"
	"github.com/ibrohim2505/prokinobot/internal/config"
	"github.com/ibrohim2505/prokinobot/internal/logging"
	log "github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := migrate(ctx, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	if errRun := app.Run(ctx, cfg); errRun != nil {
		log.WithError(errRun).Error("prokinobot exited")
		_ = closer.Close()
		os.Exit(1)
	}
}

func migrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(config.ResolveConfigPath(*configPath))
	if err != nil {
		return err
	}
	if err := app.Migrate(ctx, cfg); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
