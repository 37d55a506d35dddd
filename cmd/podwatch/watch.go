package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/podwatch/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Print state changes as they happen",
		Long:    `Print state changes and other daemon events until interrupted.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return fmt.Errorf("failed to get state: %w", err)
			}
			if st.State != nil {
				cmd.Println(strings.Join(formatState(*st.State), "\n"))
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			for ev := range apiClient.SubscribeEvents(ctx) {
				line, err := formatEvent(ev)
				if err != nil {
					logrus.WithError(err).WithField("event", ev.Name).Warn("failed to decode event")
					continue
				}
				if line == "" {
					continue
				}
				cmd.Printf("%s %s\n", color.New(color.Faint).Sprint(time.Now().Format(time.TimeOnly)), line)
			}
			if ctx.Err() == nil {
				return fmt.Errorf("event stream closed by the daemon")
			}
			return nil
		},
	}
}

// formatEvent renders an event as a single line. Unknown events give "".
func formatEvent(ev events.Event) (string, error) {
	switch ev.Name {
	case events.StateChanged:
		p, err := events.DecodeAs[events.StateChangedEvent](ev)
		if err != nil {
			return "", err
		}
		s := p.New
		return fmt.Sprintf("%s  L %s  R %s  C %s",
			bold("%s", s.Model), formatPod(s.Pods.Left), formatPod(s.Pods.Right), formatCase(s.Case)), nil
	case events.DeviceLost:
		return color.YellowString("AirPods out of range"), nil
	case events.LidOpened:
		p, err := events.DecodeAs[events.LidOpenedEvent](ev)
		if err != nil {
			return "", err
		}
		if p.Opened {
			return "case lid opened", nil
		}
		return "case lid closed", nil
	case events.BothInEar:
		p, err := events.DecodeAs[events.BothInEarEvent](ev)
		if err != nil {
			return "", err
		}
		if p.BothInEar {
			return "both earphones in ear", nil
		}
		return "earphones taken out", nil
	case events.ScannerState:
		p, err := events.DecodeAs[events.ScannerStateEvent](ev)
		if err != nil {
			return "", err
		}
		if p.Error != "" {
			return color.RedString("scanner %s: %s", p.State, p.Error), nil
		}
		return "scanner " + p.State, nil
	case events.BoundDeviceChanged:
		p, err := events.DecodeAs[events.BoundDeviceEvent](ev)
		if err != nil {
			return "", err
		}
		if p.Address == "" {
			return "device unbound", nil
		}
		state := "disconnected"
		if p.Connected {
			state = "connected"
		}
		return fmt.Sprintf("bound device %s %s", p.Address, state), nil
	}
	return "", nil
}
