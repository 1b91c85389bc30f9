// cmd/asphalt/commands/sync.go

package commands

import (
	"fmt"

	"asphalt/pkg/app"
	"asphalt/pkg/backend"
	"asphalt/pkg/syncer"

	"github.com/spf13/cobra"
)

var syncFlags struct {
	target        string
	apiKey        string
	cookie        string
	dryRun        bool
	expectedPrice uint64
	cacheDir      string
}

var syncCmd = &cobra.Command{
	Use:       "sync [cloud|studio|debug]",
	Short:     "Sync all inputs and regenerate code",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(backend.TargetCloud), string(backend.TargetStudio), string(backend.TargetDebug)},
	RunE: func(cmd *cobra.Command, args []string) error {
		if Asphalt == nil {
			return fmt.Errorf("app not initialized")
		}

		// 1. 目标: 位置参数优先，其次 --target
		raw := syncFlags.target
		if len(args) == 1 {
			if raw != "" && raw != args[0] {
				return fmt.Errorf("conflicting targets %q and %q", args[0], raw)
			}
			raw = args[0]
		}
		target, err := backend.ParseTarget(raw)
		if err != nil {
			return err
		}
		if syncFlags.dryRun && target != backend.TargetCloud {
			return fmt.Errorf("--dry-run can only be used with the cloud target")
		}

		// 2. 后端 (dry-run 不需要)
		var b backend.Backend
		var remote syncer.FatalReporter
		if !syncFlags.dryRun {
			creds := app.Credentials{APIKey: syncFlags.apiKey, Cookie: syncFlags.cookie}
			if cmd.Flags().Changed("expected-price") {
				price := syncFlags.expectedPrice
				creds.ExpectedPrice = &price
			}
			be, client, err := Asphalt.Backend(target, creds)
			if err != nil {
				return err
			}
			b = be
			if client != nil {
				remote = client
			}
		}

		// 3. 同步
		s, err := syncer.New(Asphalt.Config, Asphalt.Lockfile, b, remote, syncer.Options{
			Target:       target,
			DryRun:       syncFlags.dryRun,
			LockfilePath: Asphalt.LockfilePath,
			ProjectDir:   Asphalt.ProjectDir,
			Process:      Asphalt.Process,
			Output:       cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		_, err = s.Run(cmd.Context())
		return err
	},
}

func init() {
	f := syncCmd.Flags()
	f.StringVar(&syncFlags.target, "target", "", "sync target: cloud, studio or debug (default cloud)")
	f.StringVar(&syncFlags.apiKey, "api-key", "", "Open Cloud API key (env ASPHALT_API_KEY)")
	f.StringVar(&syncFlags.cookie, "cookie", "", ".ROBLOSECURITY cookie for animations (env ASPHALT_COOKIE)")
	f.BoolVar(&syncFlags.dryRun, "dry-run", false, "report new assets without uploading; fails if any exist")
	f.Uint64Var(&syncFlags.expectedPrice, "expected-price", 0, "expected upload price in Robux")
	f.StringVar(&syncFlags.cacheDir, "cache-dir", "", "directory for the preprocess cache (overrides cache.dir)")
	rootCmd.AddCommand(syncCmd)
}
