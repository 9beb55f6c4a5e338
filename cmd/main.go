// Package main provides the mailscan command line. The root command scans a
// single mail address; the serve and providers subcommands expose the same
// dispatcher over HTTP and list the builtin provider table.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailscan/internal/config"
	"mailscan/internal/scanner"
	"mailscan/pkg/logger"
	"mailscan/pkg/metrics"
)

// app carries what the subcommands share once the root command loaded the
// configuration.
type app struct {
	cfg    *config.Config
	stdout io.Writer
	// newScanner builds the dispatcher, replaced in tests to avoid network access.
	newScanner func(cfg *config.Config, recorder *metrics.Recorder) (scanner.Scanner, error)
}

func newRootCommand(a *app) *cobra.Command {
	var configPath string
	var opts scanOptions

	rootCmd := &cobra.Command{
		Use:           "mailscan",
		Short:         "Discovers the mail server configuration of an email address",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Setup(cfg.Environment, cfg.LogLevel)
			a.cfg = cfg

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.scan(cmd.Context(), opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config File Path")

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.mailAddress, "mailaddress", "a", "", "Mail address to scan")
	flags.BoolVarP(&opts.autoconfig, "autoconfig", "c", false, "Run the autoconfig method")
	flags.BoolVarP(&opts.autodiscover, "autodiscover", "d", false, "Run the autodiscover method")
	flags.BoolVarP(&opts.srv, "srv", "s", false, "Run the DNS SRV method")
	flags.BoolVarP(&opts.buildin, "buildin", "b", false, "Run the builtin provider table method")
	flags.StringVarP(&opts.jsonFile, "json-file", "o", "", "Write the report to this file instead of stdout")
	_ = rootCmd.MarkFlagRequired("mailaddress")

	rootCmd.AddCommand(
		serveCommand(a),
		providersCommand(a),
	)

	return rootCmd
}

// execute runs the command line and returns the process exit status.
func execute(ctx context.Context, a *app, args []string) int {
	rootCmd := newRootCommand(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(a.stdout)

	// replaced once the configuration is loaded
	logger.Setup(logger.DevelopmentEnvironment, "")

	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "captured panic, exiting...", zap.Any("panic", p))
			_ = logger.Get(ctx).Sync()

			panic(p)
		}
	}()

	err := rootCmd.ExecuteContext(ctx)
	_ = logger.Get(ctx).Sync()
	if err != nil {
		logger.Error(ctx, "mailscan failed", zap.Error(err))

		return 1
	}

	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	code := execute(ctx, &app{stdout: os.Stdout, newScanner: newScanner}, os.Args[1:])
	stop()
	os.Exit(code)
}
