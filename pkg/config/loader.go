package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// keyDelimiter 避免 viper 把带 "." 的 key 拆成嵌套表
const keyDelimiter = "::"

// rawInput 保留 bleed 是否显式给出
type rawInput struct {
	Path              string              `toml:"path"`
	OutputPath        string              `toml:"output_path"`
	Bleed             *bool               `toml:"bleed"`
	Web               map[string]WebAsset `toml:"web"`
	Ignore            []string            `toml:"ignore"`
	WarnEachDuplicate bool                `toml:"warn_each_duplicate"`
}

type rawFile struct {
	Inputs map[string]rawInput `toml:"inputs"`
}

// Load 读取并校验配置文件
// path 为空时使用当前目录下的 asphalt.toml
func Load(path string) (*Config, error) {
	if path == "" {
		path = FileName
	}

	// 1. 读文件，缺失配置是致命错误
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// 2. Viper: 默认值 + 环境变量 (ASPHALT_CODEGEN_STYLE 等)
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)
	v.SetConfigType("toml")
	v.SetEnvPrefix("ASPHALT")
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api_key")
	_ = v.BindEnv("cookie")

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("fatal error config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// 3. inputs 直接用 TOML 解码，viper 会把 key 转成小写
	var raw rawFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode inputs: %w", err)
	}
	cfg.Inputs = make(map[string]*Input, len(raw.Inputs))
	for name, in := range raw.Inputs {
		cfg.Inputs[name] = in.resolve(name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.WithField("file", path).Debug("using config file")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("codegen::style", string(StyleFlat))
	v.SetDefault("codegen::strip_extensions", false)
	v.SetDefault("codegen::typescript", false)
	v.SetDefault("codegen::luau", true)
	v.SetDefault("codegen::output_name", "assets")

	v.SetDefault("cache::dir", "")
	v.SetDefault("rate_limit::requests_per_second", 0)
}

func (r rawInput) resolve(name string) *Input {
	in := &Input{
		Name:              name,
		Path:              r.Path,
		OutputPath:        r.OutputPath,
		Bleed:             true,
		Web:               r.Web,
		Ignore:            r.Ignore,
		WarnEachDuplicate: r.WarnEachDuplicate,
	}
	if r.Bleed != nil {
		in.Bleed = *r.Bleed
	}
	if in.Web == nil {
		in.Web = map[string]WebAsset{}
	}
	return in
}

// Write 把配置写成 TOML，init 命令使用；文件已存在时拒绝覆盖
func Write(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
