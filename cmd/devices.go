package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/smazurov/lensnode/internal/media"
	"github.com/spf13/cobra"
)

// CreateDevicesCmd creates the devices command, which prints what the booth's
// camera selector would offer.
func CreateDevicesCmd(platform media.Platform) *cobra.Command {
	var all bool
	var asJSON bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List cameras",
		Long:  `Enumerates media devices the way the booth does at startup. Only video inputs are shown unless --all is given.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var devices []media.DeviceDescriptor
			var err error
			if all {
				devices, err = platform.EnumerateDevices(ctx)
			} else {
				devices, err = media.ListVideoInputDevices(ctx, platform)
			}
			if err != nil {
				return fmt.Errorf("enumerate devices: %w", err)
			}
			return writeDevices(cmd.OutOrStdout(), devices, asJSON)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include audio devices")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Enumeration timeout")

	return cmd
}

type deviceRow struct {
	DeviceID string `json:"device_id"`
	Kind     string `json:"kind"`
	Label    string `json:"label"`
}

func writeDevices(w io.Writer, devices []media.DeviceDescriptor, asJSON bool) error {
	rows := make([]deviceRow, len(devices))
	for i, d := range devices {
		rows[i] = deviceRow{DeviceID: d.DeviceID, Kind: d.Kind.String(), Label: d.Label}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No devices found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE ID\tKIND\tLABEL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.DeviceID, r.Kind, r.Label)
	}
	return tw.Flush()
}
