package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"omraudit/internal/adapters/credfile"
	"omraudit/internal/adapters/download"
	"omraudit/internal/adapters/httpclient"
	"omraudit/internal/config"
	"omraudit/internal/logging"
	"omraudit/internal/services/audits"
	"omraudit/internal/services/credentials"
	"omraudit/internal/services/query"
	"omraudit/internal/services/upload"
)

// app is the wiring shared by every command.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	logFile *os.File
	clock   clockwork.Clock
	client  *httpclient.Client
	creds   *credentials.Manager
	audits  *audits.Service
	uploads *upload.Service
	sink    *download.Dir
	out     io.Writer
}

type globalFlags struct {
	configPath string
	apiURL     string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout, clock: clockwork.NewRealClock()}
	root := newRootCmd(a)
	err := root.ExecuteContext(ctx)
	if a.logFile != nil {
		a.logFile.Close()
	}
	if err != nil {
		if errors.Is(err, audits.ErrNotEnabled) {
			err = errors.New("not logged in, run `omr-review login --user NAME` first")
		}
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "omr-review",
		Short:         "Review console for OMR audit results",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, flags)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file")
	pf.StringVar(&flags.apiURL, "api-url", "", "audit backend base URL (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newTemplatesCmd(a),
		newUploadCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDecideCmd(a),
		newExportCmd(a),
		newCleanupCmd(a),
		newReviewCmd(a),
	)
	return root
}

// setup loads configuration and builds the service graph. The interactive
// console logs to a file so records do not corrupt the screen.
func (a *app) setup(cmd *cobra.Command, flags globalFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.apiURL != "" {
		cfg.APIURL = flags.apiURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	a.cfg = cfg

	var logOut io.Writer = os.Stderr
	if cmd.Name() == "review" && cfg.LogFile != "" {
		f, err := logging.OpenFile(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		logOut = f
	}
	a.log, err = logging.New(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	a.client, err = httpclient.New(cfg.APIURL, httpclient.WithTimeout(cfg.RequestTimeout), httpclient.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.creds = credentials.New(credfile.New(cfg.CredentialsPath, a.log), a.log)
	a.creds.Hydrate()
	a.audits = audits.New(a.client, a.creds, query.NewCache(a.clock), cfg.CacheTTL, a.log)
	a.uploads = upload.New(a.audits, a.creds, cfg.TokenRequired, a.log)
	a.sink = download.New(cfg.DownloadDir, a.log)
	a.log.Debug("configured", "api", cfg.APIURL, "credentials", cfg.CredentialsPath)
	return nil
}
