package cmd

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/psantana5/renderhook/internal/shutdown"
	"github.com/psantana5/renderhook/pkg/bridge"
	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/logging"
	"github.com/psantana5/renderhook/pkg/metrics"
	"github.com/psantana5/renderhook/pkg/tracing"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	bridgeSnapshot string
	bridgeSaveTo   string
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve scene state over HTTP",
}

var bridgeServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a snapshot until interrupted",
	Long: `Loads a snapshot into memory and serves it over HTTP. resolve --host-url,
devices --host-url and a render host plugin can then read and change the same
state. On SIGINT or SIGTERM the final state can be saved with --save.`,
	RunE: runBridgeServe,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.AddCommand(bridgeServeCmd)

	bridgeServeCmd.Flags().StringVarP(&bridgeSnapshot, "snapshot", "s", "", "snapshot file to serve")
	bridgeServeCmd.Flags().String("addr", "", "listen address (default :8765)")
	bridgeServeCmd.Flags().String("api-key", "", "require this bearer API key")
	bridgeServeCmd.Flags().Float64("rate-limit", 0, "requests per second per client, 0 to use config")
	bridgeServeCmd.Flags().StringVar(&bridgeSaveTo, "save", "", "write the served state to this file on shutdown")
	bridgeServeCmd.Flags().String("tls-cert", "", "serve HTTPS with this certificate")
	bridgeServeCmd.Flags().String("tls-key", "", "private key for --tls-cert")
	bridgeServeCmd.Flags().String("tls-client-ca", "", "require client certificates signed by this CA")
	bridgeServeCmd.MarkFlagRequired("snapshot")

	viper.BindPFlag("bridge.addr", bridgeServeCmd.Flags().Lookup("addr"))
	viper.BindPFlag("bridge.api_key", bridgeServeCmd.Flags().Lookup("api-key"))
	viper.BindPFlag("bridge.rate_limit", bridgeServeCmd.Flags().Lookup("rate-limit"))
	viper.BindPFlag("bridge.tls.cert", bridgeServeCmd.Flags().Lookup("tls-cert"))
	viper.BindPFlag("bridge.tls.key", bridgeServeCmd.Flags().Lookup("tls-key"))
	viper.BindPFlag("bridge.tls.client_ca", bridgeServeCmd.Flags().Lookup("tls-client-ca"))
}

func runBridgeServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	snap, err := host.LoadSnapshot(bridgeSnapshot)
	if err != nil {
		return err
	}
	h := host.NewMemoryHost(snap)

	mgr := shutdown.New(10*time.Second, logger)
	mgr.Register("logger", shutdown.CloseResource(logger))

	tp, err := tracing.InitTracer(cmd.Context(), tracing.Config{
		ServiceName:    "renderhook-bridge",
		ServiceVersion: Version,
		OTLPEndpoint:   viper.GetString("tracing.endpoint"),
		Enabled:        viper.GetBool("tracing.enabled"),
	}, logger)
	if err != nil {
		return err
	}
	mgr.Register("tracing", tp.Shutdown)

	if bridgeSaveTo != "" {
		mgr.Register("snapshot", func(_ context.Context) error {
			logger.Info("Saving served state", logging.Fields{"path": bridgeSaveTo})
			return host.SaveSnapshot(bridgeSaveTo, h.Snapshot())
		})
	}

	var tlsConfig *tls.Config
	if cert := viper.GetString("bridge.tls.cert"); cert != "" {
		tlsConfig, err = bridge.LoadServerTLS(cert, viper.GetString("bridge.tls.key"), viper.GetString("bridge.tls.client_ca"))
		if err != nil {
			return err
		}
	}

	srv := bridge.NewServer(h, bridge.Options{
		APIKey:    viper.GetString("bridge.api_key"),
		TLS:       tlsConfig,
		RateLimit: viper.GetFloat64("bridge.rate_limit"),
		Pass:      passConfig(),
		Logger:    logger,
		Metrics:   metrics.NewRecorder(),
		Tracer:    tp,
	})

	ctx, stop := mgr.SignalContext(cmd.Context())
	defer stop()

	serveErr := srv.ListenAndServe(ctx, viper.GetString("bridge.addr"))
	if err := mgr.Shutdown(); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}
