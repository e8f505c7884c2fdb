package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/mrcplink/internal/client"
	"github.com/danmuck/mrcplink/internal/config"
	"github.com/danmuck/mrcplink/internal/logging"
	"github.com/danmuck/mrcplink/internal/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const metricsShutdownTimeout = 2 * time.Second

type options struct {
	configPath  string
	addr        string
	sessionID   string
	logLevel    string
	metricsAddr string

	cfg config.Config
	// metrics overrides the process-wide collectors; tests set it.
	metrics *observability.Metrics
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{})
}

func newRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "mrcpctl",
		Short: "EasyMrcp protocol client",
		Long: `mrcpctl talks to an EasyMrcp server over its framed JSON event protocol.

It can send single events for debugging, run an echo IVR that repeats the
caller's speech, or drive a spy leg that transcribes pushed RTP audio.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (.toml, .yaml or .yml)")
	flags.StringVarP(&opts.addr, "addr", "a", "", "EasyMrcp server host:port")
	flags.StringVar(&opts.sessionID, "id", "", "session id sent with every event (default random UUID)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error, disabled")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")

	root.AddCommand(
		sendCmd(opts),
		echoCmd(opts),
		spyCmd(opts),
		versionCmd(),
	)
	return root
}

// resolve layers config file values under explicit flags.
func (o *options) resolve(cmd *cobra.Command) error {
	logging.ConfigureRuntime()
	if o.logLevel != "" && !logging.SetLevel(o.logLevel) {
		return fmt.Errorf("unknown log level %q", o.logLevel)
	}

	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Address = strings.TrimSpace(o.addr)
	}
	if flags.Changed("id") {
		cfg.SessionID = strings.TrimSpace(o.sessionID)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = strings.TrimSpace(o.metricsAddr)
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	o.cfg = cfg
	return nil
}

func (o *options) newClient() (*client.Client, error) {
	return client.New(client.Config{
		Address:   o.cfg.Address,
		SessionID: o.cfg.SessionID,
		Session:   o.cfg.Session,
		Metrics:   o.metrics,
	})
}

// serveMetrics starts the metrics router when an address is configured and
// returns its shutdown func.
func (o *options) serveMetrics() (func(), error) {
	if o.cfg.MetricsAddr == "" {
		return func() {}, nil
	}
	ln, err := net.Listen("tcp", o.cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", o.cfg.MetricsAddr, err)
	}
	srv := &http.Server{
		Handler:           observability.NewRouter(prometheus.DefaultGatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", ln.Addr().String()).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
