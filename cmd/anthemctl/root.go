// cmd/anthemctl/root.go
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsnodgrass/goanthem/internal/amp"
	"github.com/rsnodgrass/goanthem/internal/config"
	"github.com/rsnodgrass/goanthem/pkg/control"
)

type cliOptions struct {
	series  string
	port    string
	baud    int
	async   bool
	zone    int
	timeout time.Duration
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "anthemctl",
		Short:        "Control Anthem A/V processors and receivers over RS232",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.series, "series", "d2", "amplifier series (d2, avm20, avm30, avm50, mrx)")
	root.PersistentFlags().StringVar(&opts.port, "port", "/dev/ttyUSB0", "serial port device or URL")
	root.PersistentFlags().IntVar(&opts.baud, "baud", 0, "override baud rate (0 = series default)")
	root.PersistentFlags().BoolVar(&opts.async, "async", false, "use the asynchronous connection")
	root.PersistentFlags().IntVar(&opts.zone, "zone", 1, "target zone")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "overall command timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newPowerCmd(opts),
		newMuteCmd(opts),
		newVolumeCmd(opts),
		newSourceCmd(opts),
		newStatusCmd(opts),
		newRawCmd(opts),
		newSeriesCmd(),
	)
	return root
}

// withAmp opens a controller for the selected series/port, runs fn and
// closes the connection afterwards.
func withAmp(opts *cliOptions, fn func(ctx context.Context, a control.AmpControl) error) error {
	logger := zap.NewNop()
	if opts.verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = dev
	}

	registry, err := config.LoadRegistry(logger)
	if err != nil {
		return err
	}

	overrides := amp.Overrides{BaudRate: opts.baud}

	var a control.AmpControl
	if opts.async {
		a, err = amp.NewAsyncController(registry, opts.series, opts.port, overrides, logger)
	} else {
		a, err = amp.NewController(registry, opts.series, opts.port, overrides, logger)
	}
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	return fn(ctx, a)
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func newPowerCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "power {on|off}",
		Short: "Turn a zone on or off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			return withAmp(opts, func(ctx context.Context, a control.AmpControl) error {
				return a.SetPower(ctx, opts.zone, on)
			})
		},
	}
}

func newMuteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mute {on|off}",
		Short: "Mute or unmute a zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			return withAmp(opts, func(ctx context.Context, a control.AmpControl) error {
				return a.SetMute(ctx, opts.zone, on)
			})
		},
	}
}

func newVolumeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume {LEVEL|up|down}",
		Short: "Set or step the zone volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAmp(opts, func(ctx context.Context, a control.AmpControl) error {
				switch args[0] {
				case "up":
					return a.VolumeUp(ctx, opts.zone)
				case "down":
					return a.VolumeDown(ctx, opts.zone)
				}
				level, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("expected a volume level, up or down, got %q", args[0])
				}
				return a.SetVolume(ctx, opts.zone, level)
			})
		},
	}
	return cmd
}

func newSourceCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "source SOURCE",
		Short: "Select the input source for a zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("expected a numeric source, got %q", args[0])
			}
			return withAmp(opts, func(ctx context.Context, a control.AmpControl) error {
				return a.SetSource(ctx, opts.zone, source)
			})
		},
	}
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query and print the zone status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAmp(opts, func(ctx context.Context, a control.AmpControl) error {
				status, err := a.ZoneStatus(ctx, opts.zone)
				if err != nil {
					return err
				}
				for key, value := range status {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", key, value)
				}
				return nil
			})
		},
	}
}

func newRawCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "raw COMMAND [key=value ...]",
		Short: "Run a named protocol command with arguments",
		Long: "Run a named protocol command, e.g.\n" +
			"  anthemctl raw set_volume zone=1 volume=40",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdArgs := map[string]interface{}{"zone": opts.zone}
			for _, kv := range args[1:] {
				i := strings.IndexByte(kv, '=')
				if i < 0 {
					return fmt.Errorf("invalid argument %q, expected key=value", kv)
				}
				cmdArgs[kv[:i]] = kv[i+1:]
			}
			return withAmp(opts, func(ctx context.Context, a control.AmpControl) error {
				reply, err := a.RunCommand(ctx, args[0], cmdArgs)
				if err != nil {
					return err
				}
				if reply != "" {
					fmt.Fprintln(cmd.OutOrStdout(), reply)
				}
				return nil
			})
		},
	}
}

func newSeriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "series",
		Short: "List the supported amplifier series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := config.LoadRegistry(zap.NewNop())
			if err != nil {
				return err
			}
			for _, name := range registry.SeriesNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
