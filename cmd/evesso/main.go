package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/evesso/internal/app"
	"github.com/jessevdk/go-flags"
)

// commandlineOpts override the environment configuration when set.
type commandlineOpts struct {
	Server   string `long:"server" description:"SSO deployment (tranquility, singularity)"`
	BaseURL  string `long:"base-url" description:"Override the deployment root URL"`
	Accounts string `short:"a" long:"accounts" description:"YAML file listing the accounts to log in"`
	// see time.ParseDuration for valid timeout strings
	Timeout time.Duration `long:"timeout" description:"Timeout of each SSO request"`
	JSON    bool          `long:"json" description:"Print results as JSON"`
	Debug   bool          `short:"d" long:"debug" description:"Switch on debug logging"`
}

func (o commandlineOpts) apply(cfg *app.Config) {
	if o.Server != "" {
		cfg.Server = o.Server
	}
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	if o.Accounts != "" {
		cfg.AccountsFile = o.Accounts
	}
	if o.Timeout > 0 {
		cfg.RequestTimeout = o.Timeout
	}
	if o.JSON {
		cfg.JSON = true
	}
	if o.Debug {
		cfg.LogLevel = "debug"
	}
}

func run() error {
	var opts commandlineOpts
	if _, err := flags.Parse(&opts); err != nil {
		return err
	}

	cfg := app.LoadConfig()
	opts.apply(&cfg)

	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func main() {
	err := run()
	if err == nil {
		return
	}

	// the parser has printed its own errors, per-account failures are already logged
	var flagsErr *flags.Error
	switch {
	case errors.As(err, &flagsErr):
		if flagsErr.Type == flags.ErrHelp {
			return
		}
	case !errors.Is(err, app.ErrLoginFailed):
		log.Print(err)
	}
	os.Exit(1)
}
