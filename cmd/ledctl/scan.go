package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/ledctl/internal/device"
	goble "github.com/srg/ledctl/internal/device/go-ble"
	"github.com/srg/ledctl/pkg/config"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for advertising BLE devices",
	Long: `Scan for nearby Bluetooth Low Energy devices and list their addresses,
names, signal strength and advertised services. Use the addresses in the
devices section of the config.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanGoveeOnly bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanGoveeOnly, "govee", false, "Only show devices advertising the Govee control service")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}
	if scanDuration <= 0 {
		return fmt.Errorf("scan duration must be positive")
	}

	logger, err := configureLogger(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	adapter, err := goble.NewAdapter(logger)
	if err != nil {
		return fmt.Errorf("failed to open BLE adapter: %w", err)
	}
	defer func() { _ = adapter.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), scanDuration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Scanning for %s...\n", scanDuration)

	found, err := collectAdvertisements(ctx, adapter, scanGoveeOnly)
	if err != nil {
		return err
	}

	if scanFormat == "json" {
		return displayScanJSON(cmd.OutOrStdout(), found)
	}
	return displayScanTable(cmd.OutOrStdout(), found)
}

// collectAdvertisements scans until ctx is done and returns one entry per
// address, strongest signal first. A name seen once is kept for the address.
func collectAdvertisements(ctx context.Context, adapter *goble.Adapter, goveeOnly bool) ([]goble.Advertisement, error) {
	seen := hashmap.New[device.Address, goble.Advertisement]()

	err := adapter.ScanAdvertisements(ctx, func(adv goble.Advertisement) {
		if goveeOnly && !advertises(adv, config.DefaultGoveeService) {
			return
		}
		if prev, ok := seen.Get(adv.Address); ok && adv.Name == "" {
			adv.Name = prev.Name
		}
		seen.Set(adv.Address, adv)
	})
	if err != nil {
		return nil, err
	}

	out := make([]goble.Advertisement, 0, seen.Len())
	seen.Range(func(_ device.Address, adv goble.Advertisement) bool {
		out = append(out, adv)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}

func advertises(adv goble.Advertisement, service string) bool {
	for _, s := range adv.Services {
		if device.SameUUID(s, service) {
			return true
		}
	}
	return false
}

func displayScanTable(out io.Writer, found []goble.Advertisement) error {
	if len(found) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI\tSERVICES")

	for _, adv := range found {
		name := adv.Name
		if name == "" {
			name = "-"
		}
		name = truncate(name, 20)

		short := make([]string, 0, len(adv.Services))
		for _, s := range adv.Services {
			short = append(short, device.ShortenUUID(s))
		}
		services := truncate(strings.Join(short, ","), 30)

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", adv.Address, name, adv.RSSI, services)
	}

	return w.Flush()
}

// truncate shortens s to at most limit runes, marking the cut with "..."
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func displayScanJSON(out io.Writer, found []goble.Advertisement) error {
	type entry struct {
		Address     device.Address `json:"address"`
		Name        string         `json:"name"`
		RSSI        int            `json:"rssi"`
		Connectable bool           `json:"connectable"`
		Services    []string       `json:"services"`
	}

	entries := make([]entry, 0, len(found))
	for _, adv := range found {
		entries = append(entries, entry(adv))
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}
