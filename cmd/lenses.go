package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/smazurov/lensnode/internal/config"
	"github.com/smazurov/lensnode/internal/lenskit"
	"github.com/spf13/cobra"
)

// DefaultRuntimeBaseURL is where a local rendering runtime listens.
const DefaultRuntimeBaseURL = "http://127.0.0.1:8700"

// LensesOptions are resolved like the server options: flags, then
// LENSNODE_<KEY> or <KEY> env vars, then the config file.
type LensesOptions struct {
	Config         string
	APIToken       string `toml:"booth.api_token" env:"API_TOKEN"`
	LensGroupID    string `toml:"booth.lens_group_id" env:"LENS_GROUP_ID"`
	RuntimeBaseURL string `toml:"runtime.base_url" env:"RUNTIME_BASE_URL"`
	Timeout        time.Duration
}

// CreateLensesCmd creates the lenses command. newBootstrapper builds the runtime
// client for the resolved base URL; the runtime is closed before returning.
func CreateLensesCmd(newBootstrapper func(baseURL string) lenskit.Bootstrapper) *cobra.Command {
	opts := &LensesOptions{}

	cmd := &cobra.Command{
		Use:   "lenses",
		Short: "List the lens catalog",
		Long:  `Bootstraps the rendering runtime with the configured token and prints the lenses of the configured group in display order.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				return err
			}
			if opts.APIToken == "" {
				return errors.New("API_TOKEN is required (flag --api-token, env LENSNODE_API_TOKEN or API_TOKEN)")
			}
			if opts.LensGroupID == "" {
				return errors.New("LENS_GROUP_ID is required (flag --lens-group-id, env LENSNODE_LENS_GROUP_ID or LENS_GROUP_ID)")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			lenses, err := ListLenses(ctx, newBootstrapper(opts.RuntimeBaseURL), opts.APIToken, opts.LensGroupID)
			if err != nil {
				return err
			}
			return writeLenses(cmd.OutOrStdout(), lenses)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "config.toml", "Path to configuration file")
	cmd.Flags().StringVar(&opts.APIToken, "api-token", "", "Runtime API token")
	cmd.Flags().StringVar(&opts.LensGroupID, "lens-group-id", "", "Lens group to list")
	cmd.Flags().StringVar(&opts.RuntimeBaseURL, "runtime-base-url", DefaultRuntimeBaseURL, "Rendering runtime base URL")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Bootstrap and load timeout")

	return cmd
}

// ListLenses bootstraps a runtime, loads one group and closes the runtime.
func ListLenses(ctx context.Context, b lenskit.Bootstrapper, token, groupID string) ([]lenskit.Lens, error) {
	rt, err := b.Bootstrap(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("bootstrap runtime: %w", err)
	}
	defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

	lenses, err := rt.Lenses().LoadLensGroups(ctx, []string{groupID})
	if err != nil {
		return nil, fmt.Errorf("load lens group %s: %w", groupID, err)
	}
	return lenses, nil
}

func writeLenses(w io.Writer, lenses []lenskit.Lens) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tLENS ID\tNAME")
	for i, l := range lenses {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i, l.ID, l.Name)
	}
	return tw.Flush()
}
