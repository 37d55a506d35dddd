package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/podwatch/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewBindCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "bind [address]",
		Short:   "Bind the AirPods to watch",
		GroupID: gBasic,
		Long: `Bind the AirPods to watch, by their Bluetooth address (AA:BB:CC:DD:EE:FF).

The AirPods must be paired with this host. Unless requireConnectedDevice is
disabled in the config, advertisements are only tracked while they are
connected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ret, err := apiClient.Bind(args[0])
			if err != nil {
				return fmt.Errorf("failed to bind device: %v", err)
			}

			logResponse(ret, "successfully bound device")

			return nil
		},
	}
}

func NewUnbindCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "unbind",
		Short:   "Stop watching the bound AirPods",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.Unbind()
			if err != nil {
				return fmt.Errorf("failed to unbind device: %v", err)
			}

			logResponse(ret, "successfully unbound device")

			return nil
		},
	}
}

func NewMinRSSICommand() *cobra.Command {
	return &cobra.Command{
		Use:     "min-rssi [dBm]",
		Short:   "Set the weakest signal accepted",
		GroupID: gAdvanced,
		Long: `Set the weakest signal accepted, in dBm, from -127 to 0.

Advertisements weaker than this are ignored. Raise it if podwatch picks up
AirPods in the next room. Use -- before negative values.`,
		Example: "  podwatch min-rssi -- -70",
		RunE: func(_ *cobra.Command, args []string) error {
			rssi, err := parseIntArg(args, "RSSI")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetMinRSSI(rssi)
			if err != nil {
				return fmt.Errorf("failed to set minimum RSSI: %v", err)
			}

			logResponse(ret, fmt.Sprintf("successfully set minimum RSSI to %d dBm", rssi))

			return nil
		},
	}
}

func NewEarDetectionCommand() *cobra.Command {
	return newEnableDisableCommand(
		"ear-detection",
		"automatic ear detection",
		`Enable or disable automatic ear detection.

When enabled, the daemon publishes an event when both earphones are put in or
taken out of the ears.`,
		func() (string, error) {
			return apiClient.SetAutomaticEarDetection(true)
		},
		func() (string, error) {
			return apiClient.SetAutomaticEarDetection(false)
		},
	)
}

func NewLidOpenCodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "lid-open-codes [code,...]",
		Short:   "Set which lid state codes mean the case is open",
		GroupID: gAdvanced,
		Long: `Set which lid state codes mean the case is open.

Codes are decimal or 0x-prefixed, separated by commas. Without arguments the
default table (0-7) is restored. Use 'podwatch decode' on the packets your
case sends to find its codes.`,
		Example: "  podwatch lid-open-codes 0x1,0x3",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var codes []int
			if len(args) == 1 {
				var err error
				codes, err = parseCodes(args[0])
				if err != nil {
					return err
				}
			}

			ret, err := apiClient.SetLidOpenCodes(codes)
			if err != nil {
				return fmt.Errorf("failed to set lid open codes: %v", err)
			}

			logResponse(ret, "successfully set lid open codes")

			return nil
		},
	}
}

func parseCodes(s string) ([]int, error) {
	var codes []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseInt(f, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid lid code %q: %v", f, err)
		}
		codes = append(codes, int(v))
	}
	return codes, nil
}

func NewDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "disconnect",
		Short:   "Drop all tracking data",
		GroupID: gAdvanced,
		Long: `Drop all tracking data, as if the AirPods disconnected.

The state is rebuilt from the next advertisements.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.Disconnect()
			if err != nil {
				return fmt.Errorf("failed to disconnect: %v", err)
			}

			if ret != "" && ret != "ok" {
				logrus.Infof("daemon responded: %s", ret)
			}
			logrus.Info("tracking data dropped")

			return nil
		},
	}
}
