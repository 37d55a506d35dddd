package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/charlie0129/podwatch/pkg/airpods"
	"github.com/charlie0129/podwatch/pkg/protocol"
)

func NewDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "decode [hex]",
		GroupID: gAdvanced,
		Short:   "Decode a proximity pairing message",
		Long: `Decode a proximity pairing message given in hex, for example one printed
by 'podwatch status' or the daemon's debug logs. Separators (spaces, colons,
dashes) are ignored. The daemon is not needed.`,
		Example: "  podwatch decode 0719010f202b9889310005" + strings.Repeat("00", 16),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := parseHex(strings.Join(args, ""))
			if err != nil {
				return err
			}

			p, ok := protocol.Decode(b)
			if !ok {
				return fmt.Errorf("not a proximity pairing message (%d bytes, want %d starting with 07 19)", len(b), protocol.PacketSize)
			}

			adv, err := airpods.NewAdvertisement(airpods.ReceivedData{
				ManufacturerData: map[uint16][]byte{protocol.VendorID: b},
			})
			if err != nil {
				return err
			}
			s := adv.State()

			cmd.Printf("Model:      %s (0x%04X)\n", s.Model, p.ModelID())
			cmd.Printf("Broadcast:  %s\n", s.Side)
			cmd.Printf("Color:      %s\n", p.Color())
			cmd.Printf("Lid state:  0x%02X\n", p.LidState())
			for _, line := range formatState(s.State)[1:] {
				cmd.Println(strings.TrimPrefix(line, "  "))
			}
			cmd.Printf("Desensitized: %s\n", p)

			return nil
		},
	}
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %v", err)
	}
	return b, nil
}
