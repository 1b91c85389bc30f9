// pkg/app/app.go
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"asphalt/pkg/asset"
	"asphalt/pkg/backend"
	"asphalt/pkg/config"
	"asphalt/pkg/lockfile"
	"asphalt/pkg/storage/disk"
	"asphalt/pkg/svg"
	"asphalt/pkg/webapi"

	log "github.com/sirupsen/logrus"
)

// TestModeEnv 设置后不发起任何网络请求，上传返回固定 ID
const TestModeEnv = "ASPHALT_TEST"

// Options 是命令行传进来的路径
type Options struct {
	ConfigPath   string
	LockfilePath string
	// CacheDir 覆盖 cache.dir
	CacheDir string
}

// App 是整个应用程序的依赖容器 (Dependency Container)
// 一次命令运行只创建一次
type App struct {
	Config       *config.Config
	Lockfile     *lockfile.Lockfile
	LockfilePath string
	// ProjectDir 是 asphalt.toml 所在目录
	ProjectDir string
	Process    asset.ProcessOptions
}

// NewApp 读取配置和 lockfile，组装共享的预处理组件
func NewApp(opts Options) (*App, error) {
	// 1. 配置
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.FileName
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no %s found, run `asphalt init` first: %w", config.FileName, err)
		}
		return nil, err
	}

	// 相对路径都以 asphalt.toml 所在目录为准，而不是当前工作目录
	projectDir := filepath.Dir(opts.ConfigPath)
	cfg.Rebase(projectDir)

	// 2. lockfile (v1 需要迁移)，没有显式指定时和配置放在一起
	if opts.LockfilePath == "" {
		opts.LockfilePath = filepath.Join(projectDir, lockfile.FileName)
	}
	lock, err := lockfile.Read(opts.LockfilePath)
	if err != nil {
		if errors.Is(err, lockfile.ErrLegacyLockfile) {
			return nil, fmt.Errorf("%w: run `asphalt migrate-lockfile` with an older Asphalt release first", err)
		}
		return nil, err
	}

	// 3. 预处理组件
	process, err := NewProcessOptions(firstNonEmpty(opts.CacheDir, cfg.Cache.Dir))
	if err != nil {
		return nil, err
	}

	return &App{
		Config:       cfg,
		Lockfile:     lock,
		LockfilePath: opts.LockfilePath,
		ProjectDir:   projectDir,
		Process:      process,
	}, nil
}

// NewProcessOptions 创建 SVG 光栅器，cacheDir 非空时启用磁盘缓存
func NewProcessOptions(cacheDir string) (asset.ProcessOptions, error) {
	opts := asset.ProcessOptions{Rasterizer: svg.NewRasterizer()}
	if cacheDir == "" {
		return opts, nil
	}
	store, err := disk.NewAdapter(cacheDir)
	if err != nil {
		return opts, fmt.Errorf("failed to init preprocess cache: %w", err)
	}
	log.WithField("dir", cacheDir).Debug("preprocess cache enabled")
	opts.Cache = asset.NewCache(store)
	return opts, nil
}

// Credentials 是命令行参数，为空时回落到环境变量
type Credentials struct {
	APIKey        string
	Cookie        string
	ExpectedPrice *uint64
}

func (c Credentials) resolve(cfg *config.Config) Credentials {
	c.APIKey = firstNonEmpty(c.APIKey, cfg.APIKey)
	c.Cookie = firstNonEmpty(c.Cookie, cfg.Cookie)
	return c
}

// NewClient 创建 Web API 客户端
func NewClient(creator config.Creator, creds Credentials, rps float64) *webapi.Client {
	return webapi.New(webapi.Options{
		APIKey:            creds.APIKey,
		Cookie:            creds.Cookie,
		Creator:           creator,
		ExpectedPrice:     creds.ExpectedPrice,
		RequestsPerSecond: rps,
		TestMode:          TestMode(),
	})
}

// TestMode 报告 ASPHALT_TEST 是否设置
func TestMode() bool {
	return os.Getenv(TestModeEnv) != ""
}

// Backend 为目标创建后端，cloud 同时返回客户端用于检查致命错误
func (a *App) Backend(target backend.Target, creds Credentials) (backend.Backend, *webapi.Client, error) {
	switch target {
	case backend.TargetCloud:
		creds = creds.resolve(a.Config)
		client := NewClient(a.Config.Creator, creds, a.Config.RateLimit.RequestsPerSecond)
		b, err := backend.NewCloud(client, creds.APIKey, creds.Cookie)
		if err != nil {
			return nil, nil, err
		}
		return b, client, nil
	case backend.TargetStudio:
		b, err := backend.NewStudio(a.ProjectDir, a.Lockfile)
		return b, nil, err
	case backend.TargetDebug:
		b, err := backend.NewDebug(a.ProjectDir)
		return b, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown target %q", target)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// FromEnv 在没有配置文件时 (upload) 直接读取 ASPHALT_API_KEY / ASPHALT_COOKIE
func (c Credentials) FromEnv() Credentials {
	c.APIKey = firstNonEmpty(c.APIKey, os.Getenv("ASPHALT_API_KEY"))
	c.Cookie = firstNonEmpty(c.Cookie, os.Getenv("ASPHALT_COOKIE"))
	return c
}
