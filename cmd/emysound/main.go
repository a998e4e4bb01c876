package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"emysound/internal/config"
	"emysound/internal/logging"
	"emysound/internal/metadata"
	"emysound/internal/telemetry"
	"emysound/pkg/emysound"
	"emysound/pkg/identity"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.toml"

// app carries what the subcommands share once configuration is loaded.
type app struct {
	configPath string
	stdout     io.Writer

	cfg       *config.Config
	logger    *logrus.Logger
	logCloser io.Closer
	metrics   *telemetry.Metrics
	client    *emysound.Client
	extractor *metadata.Extractor
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout}

	rootCmd := &cobra.Command{
		Use:   "emysound",
		Short: "EmySound audio fingerprint client",
		Long: `Registers audio with an EmySound service and looks up matches.

Matching happens on the service; this client uploads media, assigns track
identifiers and prints the results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "Path to the TOML configuration file")

	rootCmd.AddCommand(
		newInsertCmd(a),
		newQueryCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", describeError(err))
		os.Exit(1)
	}
}

// load reads configuration and builds the logger and client (called by
// commands that talk to the service).
func (a *app) load() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	a.logger, a.logCloser = logger, closer

	policy, err := identity.NewPolicy(identity.Scheme(cfg.Identity.Scheme), cfg.Identity.Compose)
	if err != nil {
		return err
	}

	a.metrics = telemetry.New()
	httpClient := &http.Client{Timeout: time.Duration(cfg.Service.TimeoutSeconds) * time.Second}

	a.client, err = emysound.New(cfg.Service.APIRoot,
		emysound.WithHTTPClient(a.metrics.Transport(httpClient)),
		emysound.WithCredentials(cfg.Service.Username, cfg.Service.Password),
		emysound.WithIdentityPolicy(policy),
		emysound.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	a.extractor = metadata.NewExtractor(cfg.Media.SupportedFormats, logger)

	logger.WithFields(logrus.Fields{
		"api_root": cfg.Service.APIRoot,
		"scheme":   policy.Scheme(),
		"composed": policy.Composed(),
	}).Debug("Client ready")
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
}

// describeError prefixes err with the side that has to act on it.
func describeError(err error) string {
	switch {
	case emysound.IsCallerError(err):
		return "invalid input: " + err.Error()
	case emysound.IsEnvironmentError(err):
		return "environment: " + err.Error()
	case emysound.IsServiceError(err):
		return "service: " + err.Error()
	default:
		return err.Error()
	}
}
