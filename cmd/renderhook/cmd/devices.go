package cmd

import (
	"fmt"

	"github.com/psantana5/renderhook/pkg/models"
	"github.com/spf13/cobra"
)

// devicesCmd lists devices in host order
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List compute devices in host detection order",
	Long: `Lists the compute devices of a snapshot or bridge in the order the host
detected them. The first non-CPU device is marked; it is the device kind a
FIRST or unrecognized --device-type request resolves to.`,
	RunE: runDevices,
}

// nodesCmd lists compositor nodes
var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List compositor nodes and their base paths",
	RunE:  runNodes,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(nodesCmd)
	addHostFlags(devicesCmd)
	addHostFlags(nodesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	h, _, err := openHost(cmd)
	if err != nil {
		return err
	}
	devices, err := h.Devices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if devices == nil {
		devices = []models.ComputeDevice{}
	}

	if outputFormat != "table" {
		return encode(cmd.OutOrStdout(), outputFormat, devices)
	}
	if len(devices) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No devices found")
		return nil
	}
	return printDevices(cmd.OutOrStdout(), devices)
}

func runNodes(cmd *cobra.Command, args []string) error {
	h, _, err := openHost(cmd)
	if err != nil {
		return err
	}
	nodes, err := h.OutputNodes()
	if err != nil {
		return fmt.Errorf("failed to list nodes: %w", err)
	}
	if nodes == nil {
		nodes = []models.OutputNode{}
	}

	if outputFormat != "table" {
		return encode(cmd.OutOrStdout(), outputFormat, nodes)
	}
	if len(nodes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No compositor nodes found")
		return nil
	}
	return printNodes(cmd.OutOrStdout(), nodes)
}
