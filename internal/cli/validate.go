package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := o.load(cmd)
			if err != nil {
				return err
			}
			logger.Debug().Str("config", o.cfgFile).Msg("configuration loaded")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %d datasources, %d procedure keys\n",
				len(cfg.DataSources), len(cfg.ProcedureKeys()))
			return err
		},
	}
}
