package commands

import (
	"fmt"

	"asphalt/pkg/exporter"

	"github.com/spf13/cobra"
)

var listShort bool

var listCmd = &cobra.Command{
	Use:   "list [input]",
	Short: "Show the assets recorded in the lockfile",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Asphalt == nil {
			return fmt.Errorf("app not initialized")
		}
		input := ""
		if len(args) == 1 {
			input = args[0]
			if _, ok := Asphalt.Config.Inputs[input]; !ok {
				return fmt.Errorf("unknown input %q", input)
			}
		}
		return exporter.NewExporter(Asphalt.Lockfile).PrintTable(cmd.OutOrStdout(), input, listShort)
	},
}

func init() {
	listCmd.Flags().BoolVar(&listShort, "short", false, "abbreviate hashes")
	rootCmd.AddCommand(listCmd)
}
