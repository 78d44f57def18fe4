package cli

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newCallsCommand(o *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "list procedure keys with their datasource and call target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := o.load(cmd)
			if err != nil {
				return err
			}
			switch format {
			case formatTable:
				w := tablewriter.NewWriter(cmd.OutOrStdout())
				w.SetHeader([]string{"Key", "Datasource", "Driver", "Call"})
				w.SetAutoFormatHeaders(false)
				for _, key := range cfg.ProcedureKeys() {
					name, p, _ := cfg.Procedure(key)
					w.Append([]string{key, name, cfg.DataSources[name].Driver, p.String()})
				}
				w.Render()
				return nil
			case formatJSON:
				doc := "[]"
				for i, key := range cfg.ProcedureKeys() {
					name, p, _ := cfg.Procedure(key)
					for _, kv := range []struct{ path, value string }{
						{"key", key},
						{"datasource", name},
						{"driver", cfg.DataSources[name].Driver},
						{"schema", p.Schema},
						{"procedure", p.Procedure},
					} {
						if doc, err = sjson.Set(doc, fmt.Sprintf("%d.%s", i, kv.path), kv.value); err != nil {
							return err
						}
					}
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), doc)
				return err
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", formatTable, "output format [table|json]")
	return cmd
}
