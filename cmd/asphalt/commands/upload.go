// cmd/asphalt/commands/upload.go

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"asphalt/pkg/app"
	"asphalt/pkg/asset"
	"asphalt/pkg/backend"
	"asphalt/pkg/config"
	"asphalt/pkg/exporter"
	"asphalt/pkg/types"

	"github.com/spf13/cobra"
)

var uploadFlags struct {
	creatorType   string
	creatorID     uint64
	bleed         bool
	link          bool
	apiKey        string
	cookie        string
	expectedPrice uint64
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a single file and print its asset id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		creator := config.Creator{Type: config.CreatorType(uploadFlags.creatorType), ID: types.AssetID(uploadFlags.creatorID)}
		if creator.Type != config.CreatorUser && creator.Type != config.CreatorGroup {
			return fmt.Errorf("--creator-type must be \"user\" or \"group\"")
		}

		// 1. 读取并预处理
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		a, err := asset.New(filepath.Base(path), data)
		if err != nil {
			return err
		}
		process, err := app.NewProcessOptions("")
		if err != nil {
			return err
		}
		process.Bleed = uploadFlags.bleed
		if err := a.Process(cmd.Context(), process); err != nil {
			return fmt.Errorf("failed to process %s: %w", path, err)
		}

		// 2. 上传
		creds := app.Credentials{APIKey: uploadFlags.apiKey, Cookie: uploadFlags.cookie}.FromEnv()
		if cmd.Flags().Changed("expected-price") {
			price := uploadFlags.expectedPrice
			creds.ExpectedPrice = &price
		}
		client := app.NewClient(creator, creds, 0)
		cloud, err := backend.NewCloud(client, creds.APIKey, creds.Cookie)
		if err != nil {
			return err
		}
		ref, err := cloud.Sync(cmd.Context(), "", a)
		if err != nil {
			return err
		}

		exporter.PrintAsset(cmd.OutOrStdout(), a, ref.Cloud, uploadFlags.link)
		return nil
	},
}

func init() {
	f := uploadCmd.Flags()
	f.StringVar(&uploadFlags.creatorType, "creator-type", string(config.CreatorUser), "creator type: user or group")
	f.Uint64Var(&uploadFlags.creatorID, "creator-id", 0, "user or group id")
	f.BoolVar(&uploadFlags.bleed, "bleed", true, "alpha bleed images")
	f.BoolVar(&uploadFlags.link, "link", false, "print the Creator Store link")
	f.StringVar(&uploadFlags.apiKey, "api-key", "", "Open Cloud API key (env ASPHALT_API_KEY)")
	f.StringVar(&uploadFlags.cookie, "cookie", "", ".ROBLOSECURITY cookie for animations (env ASPHALT_COOKIE)")
	f.Uint64Var(&uploadFlags.expectedPrice, "expected-price", 0, "expected upload price in Robux")
	_ = uploadCmd.MarkFlagRequired("creator-id")
	rootCmd.AddCommand(uploadCmd)
}
