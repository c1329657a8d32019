package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/devicefactory"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <address> <on|off|color|brightness> [value]",
	Short: "Send one command to a configured device",
	Long: `Connect to a configured device, send one lighting command and disconnect.

Examples:
  ledctl send A4:C1:38:00:11:22 on
  ledctl send A4:C1:38:00:11:22 color "#FF8000"
  ledctl send A4:C1:38:00:11:22 brightness 128`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	addr, err := device.ParseAddress(args[0])
	if err != nil {
		return err
	}
	ev, err := parseEvent(args[1], args[2:])
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	fleet, err := devicefactory.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = fleet.Close(cmd.Context()) }()

	d, err := fleet.Registry.Get(addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Connect(ctx); err != nil {
		return err
	}
	if err := d.OnEvent(ctx, ev); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", ev, addr)
	return nil
}

// parseEvent builds an Event from the command-line action and its optional value
func parseEvent(action string, values []string) (device.Event, error) {
	value := ""
	if len(values) > 0 {
		value = values[0]
	}

	switch action {
	case "on", "off":
		if value != "" {
			return device.Event{}, fmt.Errorf("%s takes no value", action)
		}
		if action == "on" {
			return device.On(), nil
		}
		return device.Off(), nil
	case "color":
		if value == "" {
			return device.Event{}, fmt.Errorf("color requires a value such as #FF8000")
		}
		return device.Color(value), nil
	case "brightness":
		level, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return device.Event{}, &device.MalformedInputError{Input: value, Reason: "brightness must be 0-255"}
		}
		return device.Brightness(uint8(level)), nil
	default:
		return device.Event{}, fmt.Errorf("unknown event %q (must be on, off, color or brightness)", action)
	}
}
