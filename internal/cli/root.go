package cli

import (
	"github.com/spf13/cobra"

	"github.com/spec-kit/repairdesk/internal/config"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	LocationsPath   string
	TechniciansPath string
}

// NewRootCommand creates the repairdesk command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "repairdesk",
		Short:         "Equipment failure ticket router",
		Long:          "Routes equipment failure reports from store staff to technicians over Telegram.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LocationsPath, "locations", "", "location directory file (overrides REGISTRY_LOCATIONS_PATH)")
	cmd.PersistentFlags().StringVar(&opts.TechniciansPath, "technicians", "", "technician roster file (overrides REGISTRY_TECHNICIANS_PATH)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewRegistryCommand(opts))
	cmd.AddCommand(NewHashPasswordCommand(opts))

	return cmd
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.LocationsPath != "" {
		cfg.Registry.LocationsPath = opts.LocationsPath
	}
	if opts.TechniciansPath != "" {
		cfg.Registry.TechniciansPath = opts.TechniciansPath
	}
	return cfg, nil
}
