package cmd

import (
	"fmt"
	"strings"

	"github.com/psantana5/renderhook/internal/hostinfo"
	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/logging"
	"github.com/psantana5/renderhook/pkg/models"
	"github.com/psantana5/renderhook/pkg/prerender"
	"github.com/spf13/cobra"
)

var (
	detectEngine      string
	detectOut         string
	detectOutputNodes []string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create and inspect scene snapshots",
}

var snapshotDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Build a snapshot from the local hardware",
	Long: `Detects the CPU and NVIDIA GPUs of this machine (via nvidia-smi) and writes
a snapshot listing them the way the render host would, one entry per GPU and
backend. Use it to dry-run resolve on a farm worker.`,
	RunE: runSnapshotDetect,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotDetectCmd)

	snapshotDetectCmd.Flags().StringVar(&detectEngine, "engine", prerender.DefaultEngine, "render engine identifier")
	snapshotDetectCmd.Flags().StringVar(&detectOut, "out", "", "write the snapshot to this file instead of stdout")
	snapshotDetectCmd.Flags().StringSliceVar(&detectOutputNodes, "output-node", nil, "add a file output node as NAME or NAME=BASE_PATH (repeatable)")
}

// parseOutputNodes turns NAME[=BASE_PATH] specs into file output nodes
func parseOutputNodes(specs []string) ([]models.OutputNode, error) {
	nodes := make([]models.OutputNode, 0, len(specs))
	for i, pair := range specs {
		name, path, _ := strings.Cut(pair, "=")
		if name == "" {
			return nil, fmt.Errorf("invalid --output-node %q: name is empty", pair)
		}
		nodes = append(nodes, models.OutputNode{
			ID:       fmt.Sprintf("node-%d", i),
			Name:     name,
			Kind:     models.NodeKindFileOutput,
			BasePath: path,
		})
	}
	return nodes, nil
}

func runSnapshotDetect(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	info, err := hostinfo.NewDetector().Detect(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to detect hardware: %w", err)
	}
	logger.Info("Detected hardware", logging.Fields{
		"cpu":     info.CPUModel,
		"threads": info.CPUThreads,
		"ram_gb":  fmt.Sprintf("%.1f", float64(info.RAMBytes)/(1<<30)),
		"gpus":    len(info.GPUs),
	})

	snap := info.Snapshot(detectEngine)
	if snap.Nodes, err = parseOutputNodes(detectOutputNodes); err != nil {
		return err
	}

	if detectOut != "" {
		return host.SaveSnapshot(detectOut, snap)
	}
	format := outputFormat
	if format == "table" {
		format = "yaml"
	}
	return host.WriteSnapshot(cmd.OutOrStdout(), snap, format)
}
