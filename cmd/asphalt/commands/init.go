// cmd/asphalt/commands/init.go

package commands

import (
	"fmt"

	"asphalt/pkg/config"
	"asphalt/pkg/types"

	"github.com/spf13/cobra"
)

var initFlags struct {
	creatorType string
	creatorID   uint64
	name        string
	path        string
	outputPath  string
	typescript  bool
	style       string
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new asphalt.toml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{
			Creator: config.Creator{
				Type: config.CreatorType(initFlags.creatorType),
				ID:   types.AssetID(initFlags.creatorID),
			},
			Codegen: config.Codegen{
				Style:      config.Style(initFlags.style),
				TypeScript: initFlags.typescript,
				Luau:       true,
				OutputName: "assets",
			},
			Inputs: map[string]*config.Input{
				initFlags.name: {
					Name:       initFlags.name,
					Path:       initFlags.path,
					OutputPath: initFlags.outputPath,
					Bleed:      true,
				},
			},
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Write(cfgFile, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", cfgFile)
		return nil
	},
}

func init() {
	f := initCmd.Flags()
	f.StringVar(&initFlags.creatorType, "creator-type", string(config.CreatorUser), "creator type: user or group")
	f.Uint64Var(&initFlags.creatorID, "creator-id", 0, "user or group id")
	f.StringVar(&initFlags.name, "name", "assets", "input name")
	f.StringVar(&initFlags.path, "path", "assets/**/*", "input glob")
	f.StringVar(&initFlags.outputPath, "output-path", "src/shared", "directory for generated code")
	f.BoolVar(&initFlags.typescript, "typescript", false, "also generate TypeScript declarations")
	f.StringVar(&initFlags.style, "style", string(config.StyleFlat), "codegen style: flat or nested")
	_ = initCmd.MarkFlagRequired("creator-id")
	rootCmd.AddCommand(initCmd)
}
