// Package cmd implements the tableread command line.
package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"

	"tableread/internal/config"
	"tableread/internal/errs"
	"tableread/internal/metrics"
	"tableread/internal/metrics/datadog"
	"tableread/internal/metrics/prompush"
)

const defaultPushgatewayURL = "http://localhost:9091"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath     string
	envFile        string
	logLevel       string
	metricsBackend string
	pushgatewayURL string
	datadogAddr    string

	logger log.Interface
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "tableread",
		Short: "Read CSV tables from local, mounted, hub and URL locations",
		Long: `tableread resolves the locations of a node configuration, reads them as
one CSV table and either prints the rows or loads them into a database.

Configuration comes from a JSON, YAML or TOML file. Every key can be
overridden with a TABLEREAD_ environment variable, e.g. TABLEREAD_READ_LIMIT.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "tableread.json", "node configuration file")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file loaded before the configuration")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.metricsBackend, "metrics-backend", "", "metrics backend (none, pushgateway, datadog); overrides the configuration")
	flags.StringVar(&opts.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL; overrides the configuration")
	flags.StringVar(&opts.datadogAddr, "datadog-addr", "", "DogStatsD address; overrides the configuration")

	rootCmd.AddCommand(
		newValidateCmd(opts),
		newCheckCmd(opts),
		newSpecCmd(opts),
		newReadCmd(opts),
		newLoadCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) setup(stderr io.Writer) error {
	level, err := log.ParseLevel(strings.ToLower(o.logLevel))
	if err != nil {
		return errs.Configurationf("invalid --log-level %q", o.logLevel)
	}
	o.logger = &log.Logger{Handler: cli.New(stderr), Level: level}

	if o.envFile != "" {
		if err := config.LoadEnvFile(o.envFile); err != nil {
			return err
		}
	}
	return nil
}

// loadNode loads and validates the configuration. Findings are logged; any
// Error finding fails the command.
func (o *rootOptions) loadNode() (config.Node, error) {
	n, err := config.Load(o.configPath)
	if err != nil {
		return config.Node{}, err
	}
	msgs := config.Validate(n)
	msgs.Log(o.logger)
	if err := msgs.Err(); err != nil {
		return config.Node{}, err
	}
	return n, nil
}

// setupMetrics installs the metrics backend chosen by flag, then
// configuration, then "none". The returned func flushes it.
func (o *rootOptions) setupMetrics(n config.Node) func() {
	backend := firstNonEmpty(o.metricsBackend, n.Metrics.Backend, "none")
	job := firstNonEmpty(n.Job, prompush.DefaultJob)
	logger := o.logger.WithField("backend", backend)

	var b metrics.Backend
	switch backend {
	case "pushgateway":
		url := firstNonEmpty(o.pushgatewayURL, n.Metrics.PushgatewayURL, defaultPushgatewayURL)
		pb, err := prompush.NewBackend(job, url)
		if err != nil {
			logger.WithError(err).Warn("metrics: init failed; disabled")
			return func() {}
		}
		logger.WithField("url", url).Debug("metrics: enabled")
		b = pb
	case "datadog":
		addr := firstNonEmpty(o.datadogAddr, n.Metrics.DatadogAddr, datadog.DefaultAddr)
		db, err := datadog.NewBackend(datadog.Config{Addr: addr, GlobalTags: []string{"job:" + job}})
		if err != nil {
			logger.WithError(err).Warn("metrics: init failed; disabled")
			return func() {}
		}
		logger.WithField("addr", addr).Debug("metrics: enabled")
		b = db
	case "none":
		return func() {}
	default:
		logger.Warn("metrics: unknown backend; disabled")
		return func() {}
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			logger.WithError(err).Warn("metrics: flush failed")
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
