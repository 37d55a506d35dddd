package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/podwatch/pkg/airpods"
	"github.com/charlie0129/podwatch/pkg/config"
	"github.com/charlie0129/podwatch/pkg/events"
	"github.com/charlie0129/podwatch/pkg/manager"
)

type statusJSON struct {
	Status        *manager.Status       `json:"status"`
	Configuration *config.RawFileConfig `json:"configuration"`
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current state of the AirPods",
		Long:    `Get the battery and case state of the bound AirPods, and the daemon configuration.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return fmt.Errorf("failed to get state: %w", err)
			}
			rawConf, err := apiClient.GetConfig()
			if err != nil {
				return fmt.Errorf("failed to get config: %w", err)
			}

			if asJSON {
				b, err := json.MarshalIndent(statusJSON{Status: st, Configuration: rawConf}, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			conf := config.NewFileFromConfig(rawConf, "")

			cmd.Println(bold("Device:"))
			if st.BoundDevice == "" {
				cmd.Println("  Bound device: none (use 'podwatch bind')")
			} else {
				name := st.BoundDevice
				if st.DisplayName != "" {
					name = fmt.Sprintf("%s (%s)", st.DisplayName, st.BoundDevice)
				}
				cmd.Printf("  Bound device: %s\n", name)
				cmd.Println("  Connected: " + bool2Text(st.Connected))
			}
			cmd.Println("  Scanning: " + bool2Text(st.Scanner == events.ScannerStarted))
			if st.ScannerError != "" {
				cmd.Printf("    %s\n", color.RedString(st.ScannerError))
			}
			if st.LastSeen != nil {
				cmd.Printf("  Last seen: %s ago\n", time.Since(*st.LastSeen).Truncate(time.Second))
			}

			cmd.Println()

			cmd.Println(bold("Battery:"))
			if st.State == nil {
				cmd.Println("  No AirPods nearby.")
			} else {
				for _, line := range formatState(*st.State) {
					cmd.Println("  " + line)
				}
			}

			cmd.Println()

			cmd.Println(bold("Configuration:"))
			cmd.Printf("  Minimum RSSI: %s\n", bold("%d dBm", conf.MinRSSI()))
			cmd.Println("  Automatic ear detection: " + bool2Text(conf.AutomaticEarDetection()))
			cmd.Println("  Require connected device: " + bool2Text(conf.RequireConnectedDevice()))
			cmd.Printf("  Scanner: %s\n", conf.Scanner())
			cmd.Println("  Allow non-root access: " + bool2Text(conf.AllowNonRootAccess()))

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}

// formatState renders the model line followed by one line per component.
func formatState(s airpods.State) []string {
	model := s.Model.String()
	if s.Model == airpods.Unknown {
		model = "Unknown model"
	}

	return []string{
		model,
		"  Left:  " + formatPod(s.Pods.Left),
		"  Right: " + formatPod(s.Pods.Right),
		"  Case:  " + formatCase(s.Case),
	}
}

func formatBattery(b airpods.Battery) string {
	if !b.Available() {
		return color.New(color.Faint).Sprint("--")
	}
	if b.IsLow() {
		return color.New(color.Bold, color.FgRed).Sprintf("%d%%", b.Value())
	}
	return bold("%d%%", b.Value())
}

func formatPod(p airpods.PodState) string {
	var notes []string
	if p.IsCharging {
		notes = append(notes, color.GreenString("charging"))
	}
	if p.IsInEar {
		notes = append(notes, "in ear")
	}
	return joinNotes(formatBattery(p.Battery), notes)
}

func formatCase(c airpods.CaseState) string {
	var notes []string
	if c.IsCharging {
		notes = append(notes, color.GreenString("charging"))
	}
	if c.IsBothPodsInCase {
		notes = append(notes, "both pods inside")
	}
	if c.IsLidOpened {
		notes = append(notes, "lid open")
	}
	return joinNotes(formatBattery(c.Battery), notes)
}

func joinNotes(s string, notes []string) string {
	if len(notes) == 0 {
		return s
	}
	return s + " (" + strings.Join(notes, ", ") + ")"
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
