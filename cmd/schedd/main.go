package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"schedkit/internal/app"
	"schedkit/internal/config"
)

// version is stamped by the build; "dev" otherwise.
var version = "dev"

const stopTimeout = 15 * time.Second

func Execute(args []string) error {
	cliApp := cli.App{
		Name:    "schedd",
		Usage:   "a small scheduling daemon",
		Version: version,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "config, c",
				Value: "./schedd.json",
				Usage: "path to the config file (json or yaml)",
			},
		},
		Commands: []cli.Command{
			{
				Name:   "check",
				Usage:  "parse and validate the config file, then exit",
				Action: runCheck,
			},
		},
		Action: runDaemon,
	}
	return cliApp.Run(args)
}

func runDaemon(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(c.String("config"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("schedd: %v", err), 1)
	}

	if err := a.Start(ctx); err != nil {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
		_ = a.Stop(stopCtx, app.StopFatalError)
		cancelStop()
		return cli.NewExitError(fmt.Sprintf("schedd: start: %v", err), 1)
	}

	// Block until a signal cancels ctx or the supervisor dies on its own.
	<-a.Done()
	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatalError
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			return cli.NewExitError(fmt.Sprintf("schedd: %v", err), 1)
		}
		return cli.NewExitError("schedd: supervisor exited unexpectedly", 1)
	}
	return nil
}

func runCheck(c *cli.Context) error {
	path := c.GlobalString("config")
	cfg, err := config.New(path).Parse()
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("schedd: %v", err), 1)
	}
	if err := cfg.Validate(); err != nil {
		return cli.NewExitError(fmt.Sprintf("schedd: %s: %v", path, err), 1)
	}
	fmt.Printf("%s: ok (%d jobs)\n", path, len(cfg.Jobs))
	return nil
}

func main() {
	if err := Execute(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "schedd: %s\n", err.Error())
		os.Exit(1)
	}
}
