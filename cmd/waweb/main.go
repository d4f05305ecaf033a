package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/waweb-dev/waweb/internal/config"
	waerrors "github.com/waweb-dev/waweb/internal/errors"
	"github.com/waweb-dev/waweb/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╦ ╦┌─┐┬ ┬┌─┐┌┐
  ║║║├─┤│││├┤ ├┴┐
  ╚╩╝┴ ┴└┴┘└─┘└─┘
`

// app carries what every command needs after the root pre-run.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	out      io.Writer
	in       io.Reader
}

func main() {
	a := &app{out: os.Stdout, in: os.Stdin}
	err := newRootCmd(a).Execute()
	if a.closeLog != nil {
		_ = a.closeLog()
	}
	if err != nil {
		waerrors.PrintError(os.Stderr, err)
		os.Exit(waerrors.ExitCode(err))
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "waweb",
		Short: "WhatsApp Web client for the terminal",
		Long: `waweb speaks the WhatsApp Web protocol from the command line.

Link a device by scanning a QR code or with a phone pairing code,
then send text and media or stay connected and stream messages.
Features include:

  • Binary node codec and tagged request correlation
  • Keep-alive and backoff reconnect
  • X3DH sessions with pluggable key stores (file, SQLite, S3)
  • Prometheus metrics and OpenTelemetry tracing`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			path, _ := cmd.Flags().GetString("config")
			return a.load(path)
		},
	}

	a.v = config.NewViper()
	if err := config.BindFlags(a.v, rootCmd.PersistentFlags()); err != nil {
		// Flags are defined right above; a lookup miss is a programming error.
		panic(err)
	}
	rootCmd.SetOut(a.out)
	rootCmd.SetIn(a.in)

	rootCmd.AddCommand(
		connectCmd(a),
		pairCmd(a),
		sendCmd(a),
		keysCmd(a),
		groupCmd(a),
		metricsCmd(a),
		versionCmd(a),
	)
	return rootCmd
}

// load reads the configuration and builds the logger.
func (a *app) load(configPath string) error {
	cfg, err := config.Load(a.v, configPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return waerrors.New("W101").Wrap(err)
	}
	a.cfg = cfg
	a.logger = logger
	a.closeLog = closeLog
	if f := cfg.File(); f != "" {
		logger.Debug("config loaded", "file", f)
	}
	return nil
}

// printBanner prints the ASCII art banner.
func (a *app) printBanner() {
	fmt.Fprint(a.out, banner)
}

// success prints a success message.
func (a *app) success(format string, args ...any) {
	fmt.Fprintf(a.out, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func (a *app) info(format string, args ...any) {
	fmt.Fprintf(a.out, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func (a *app) warn(format string, args ...any) {
	fmt.Fprintf(a.out, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
