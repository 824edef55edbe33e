package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/registry"
)

// NewRegistryCommand groups registry maintenance subcommands.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the location directory and technician roster",
	}
	cmd.AddCommand(newRegistryCheckCommand(rootOpts))
	return cmd
}

func newRegistryCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Parse both registry files and report what was loaded",
		Long: `Parse the location directory and the technician roster the same way
the bot does at startup. Malformed lines are skipped; a missing file
loads as empty and is reported as a warning.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			reg := registry.New(cfg.Registry, zap.NewNop())
			snapshot, err := reg.Reload()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "locations:   %d (%s)\n", snapshot.LocationCount(), cfg.Registry.LocationsPath)
			fmt.Fprintf(out, "technicians: %d (%s)\n", len(snapshot.Technicians()), cfg.Registry.TechniciansPath)
			if !snapshot.HasLocations() {
				fmt.Fprintln(out, "warning: location directory is empty, registration is disabled")
			}
			if len(snapshot.Technicians()) == 0 {
				fmt.Fprintln(out, "warning: technician roster is empty, nobody can claim tickets")
			}
			return nil
		},
	}
}
