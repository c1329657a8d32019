package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/pkg/config"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the configured devices",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

var devicesFormat string

func init() {
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "Output format (table, json)")
}

var vendorColors = map[string]*color.Color{
	config.VendorGovee: color.New(color.FgGreen),
	config.VendorEsp:   color.New(color.FgCyan),
	config.VendorOther: color.New(color.FgYellow),
}

func runDevices(cmd *cobra.Command, _ []string) error {
	if devicesFormat != "table" && devicesFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", devicesFormat)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	if devicesFormat == "json" {
		return displayConfiguredJSON(cmd.OutOrStdout(), cfg.Devices)
	}
	return displayConfiguredTable(cmd.OutOrStdout(), cfg.Devices)
}

func displayConfiguredTable(out io.Writer, devices []config.DeviceConfig) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices configured")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tSERVICE\tCHARACTERISTIC\tVENDOR")

	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "-"
		}
		vendor := d.Vendor
		if c, ok := vendorColors[vendor]; ok {
			// Last column, so escape codes do not disturb alignment
			vendor = c.Sprint(vendor)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.Address, name, device.ShortenUUID(d.Service), device.ShortenUUID(d.Characteristic), vendor)
	}

	return w.Flush()
}

func displayConfiguredJSON(out io.Writer, devices []config.DeviceConfig) error {
	type entry struct {
		Address        string `json:"address"`
		Name           string `json:"name,omitempty"`
		Vendor         string `json:"vendor"`
		Service        string `json:"service"`
		Characteristic string `json:"characteristic"`
	}

	entries := make([]entry, 0, len(devices))
	for _, d := range devices {
		entries = append(entries, entry(d))
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}
