package cmd

import (
	"fmt"

	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/jobargs"
	"github.com/psantana5/renderhook/pkg/logging"
	"github.com/psantana5/renderhook/pkg/metrics"
	"github.com/psantana5/renderhook/pkg/prerender"
	"github.com/psantana5/renderhook/pkg/tracing"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	resolveWrite           string
	resolveMetricsTextfile string
	resolvePrintMetrics    bool
)

// resolveCmd runs one pass
var resolveCmd = &cobra.Command{
	Use:   "resolve [flags] -- <host argv>",
	Short: "Run one pre-render pass",
	Long: `Runs device selection, compositor output path rewriting and the persistent
data decision against a snapshot file or a bridge. Everything after "--" is
treated as the host process argv; job flags are picked out of it and the
pass only runs when the marker flag is present.`,
	Example: `  renderhook resolve -s scene.yaml -- blender -b scene.blend --render-output /out/f_#### \
      --render-frame 1..250 -- --custom-script --device-type OPTIX`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	addHostFlags(resolveCmd)

	resolveCmd.Flags().StringVarP(&resolveWrite, "write", "w", "", "write the resulting snapshot to this file")
	resolveCmd.Flags().StringVar(&resolveMetricsTextfile, "metrics-textfile", "", "write pass metrics for the node exporter textfile collector")
	resolveCmd.Flags().BoolVar(&resolvePrintMetrics, "print-metrics", false, "print pass metrics after the report")

	viper.BindPFlag("metrics.textfile", resolveCmd.Flags().Lookup("metrics-textfile"))
}

func hostArgv(cmd *cobra.Command, args []string) []string {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		return args[dash:]
	}
	return args
}

func runResolve(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	cfg := passConfig()
	params, err := jobargs.Parser{Marker: cfg.Marker}.Parse(hostArgv(cmd, args))
	if err != nil {
		return err
	}

	h, final, err := openHost(cmd)
	if err != nil {
		return err
	}

	tp, err := tracing.InitTracer(cmd.Context(), tracing.Config{
		ServiceName:    "renderhook",
		ServiceVersion: Version,
		OTLPEndpoint:   viper.GetString("tracing.endpoint"),
		Enabled:        viper.GetBool("tracing.enabled"),
	}, logger)
	if err != nil {
		return err
	}
	defer tp.Shutdown(cmd.Context())

	rec := metrics.NewRecorder()
	pass := prerender.NewPass(cfg,
		prerender.WithLogger(logger),
		prerender.WithMetrics(rec),
		prerender.WithTracer(tp),
	)

	report, passErr := pass.Run(cmd.Context(), params, h)

	snap, err := final()
	if err != nil {
		return fmt.Errorf("failed to read final state: %w", err)
	}
	if err := printResolve(cmd.OutOrStdout(), outputFormat, report, snap); err != nil {
		return err
	}

	if resolveWrite != "" {
		if err := host.SaveSnapshot(resolveWrite, snap); err != nil {
			return err
		}
		logger.Info("Wrote snapshot", logging.Fields{"path": resolveWrite})
	}
	if path := viper.GetString("metrics.textfile"); path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			return err
		}
	}
	if resolvePrintMetrics {
		if err := rec.WriteText(cmd.OutOrStdout()); err != nil {
			return err
		}
	}

	return passErr
}
