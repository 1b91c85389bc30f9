package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"asphalt/pkg/app"
	"asphalt/pkg/config"
	"asphalt/pkg/lockfile"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	lockfilePath string
	verbosity    int
	// 全局应用实例，供子命令使用
	Asphalt *app.App
)

var rootCmd = &cobra.Command{
	Use:          "asphalt",
	Short:        "Asphalt: sync assets to the Roblox cloud and generate code for them",
	SilenceUsage: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setLogLevel(verbosity)

		// init 负责创建配置，upload 不需要配置
		switch cmd.Name() {
		case "init", "upload", "help", "completion":
			return nil
		}

		opts := app.Options{ConfigPath: cfgFile}
		// 不指定时 lockfile 跟随配置文件所在目录
		if cmd.Flags().Changed("lockfile") {
			opts.LockfilePath = lockfilePath
		}
		if f := cmd.Flags().Lookup("cache-dir"); f != nil {
			opts.CacheDir = f.Value.String()
		}

		var err error
		Asphalt, err = app.NewApp(opts)
		if err != nil {
			return fmt.Errorf("failed to initialize asphalt: %w", err)
		}
		return nil
	},
}

// Execute 是入口，Ctrl-C 取消正在进行的请求
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.FileName, "config file")
	rootCmd.PersistentFlags().StringVar(&lockfilePath, "lockfile", lockfile.FileName, "lockfile path")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v debug, -vv trace)")
}

func setLogLevel(v int) {
	switch {
	case v >= 2:
		log.SetLevel(log.TraceLevel)
	case v == 1:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
