// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"asphalt/pkg/types"
)

const FileName = "asphalt.toml"

var ErrInvalidConfig = errors.New("invalid config")

type CreatorType string

const (
	CreatorUser  CreatorType = "user"
	CreatorGroup CreatorType = "group"
)

type Style string

const (
	StyleFlat   Style = "flat"
	StyleNested Style = "nested"
)

// Config 是 asphalt.toml 的完整结构
type Config struct {
	Creator   Creator   `mapstructure:"creator" toml:"creator"`
	Codegen   Codegen   `mapstructure:"codegen" toml:"codegen"`
	Cache     Cache     `mapstructure:"cache" toml:"cache,omitempty"`
	RateLimit RateLimit `mapstructure:"rate_limit" toml:"rate_limit,omitempty"`

	// Inputs 的 key 区分大小写且可能包含 "."，单独解析
	Inputs map[string]*Input `mapstructure:"-" toml:"inputs"`

	// 凭据只来自环境变量 (ASPHALT_API_KEY / ASPHALT_COOKIE) 或命令行
	APIKey string `mapstructure:"api_key" toml:"-"`
	Cookie string `mapstructure:"cookie" toml:"-"`
}

type Creator struct {
	Type CreatorType   `mapstructure:"type" toml:"type"`
	ID   types.AssetID `mapstructure:"id" toml:"id"`
}

type Codegen struct {
	Style           Style  `mapstructure:"style" toml:"style"`
	StripExtensions bool   `mapstructure:"strip_extensions" toml:"strip_extensions"`
	TypeScript      bool   `mapstructure:"typescript" toml:"typescript"`
	Luau            bool   `mapstructure:"luau" toml:"luau"`
	OutputName      string `mapstructure:"output_name" toml:"output_name"`
}

// Cache 配置预处理缓存，Dir 为空时不启用
type Cache struct {
	Dir string `mapstructure:"dir" toml:"dir,omitempty"`
}

// RateLimit 是客户端主动限速，0 表示不限速 (服务端 429 仍然会被处理)
type RateLimit struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second,omitempty"`
}

// Input 是一组需要同步的文件
type Input struct {
	Name              string              `toml:"-"`
	Path              string              `toml:"path"`
	OutputPath        string              `toml:"output_path"`
	Bleed             bool                `toml:"bleed"`
	Web               map[string]WebAsset `toml:"web,omitempty"`
	Ignore            []string            `toml:"ignore,omitempty"`
	WarnEachDuplicate bool                `toml:"warn_each_duplicate,omitempty"`
}

// WebAsset 是已经在云端、不需要上传的资源
type WebAsset struct {
	ID types.AssetID `toml:"id"`
}

// InputNames 返回排好序的 input 名字
func (c *Config) InputNames() []string {
	names := make([]string, 0, len(c.Inputs))
	for name := range c.Inputs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Rebase 把配置里的相对路径改为相对 dir (asphalt.toml 所在目录)
// 这样从任意工作目录用 --config 运行结果都一样
func (c *Config) Rebase(dir string) {
	if dir == "" || dir == "." {
		return
	}
	join := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for _, in := range c.Inputs {
		// glob 统一用 "/"，doublestar 只认这个
		in.Path = filepath.ToSlash(join(in.Path))
		in.OutputPath = join(in.OutputPath)
	}
	c.Cache.Dir = join(c.Cache.Dir)
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Creator.Type {
	case CreatorUser, CreatorGroup:
	default:
		return fmt.Errorf("%w: creator.type must be \"user\" or \"group\", got %q", ErrInvalidConfig, c.Creator.Type)
	}

	switch c.Codegen.Style {
	case StyleFlat, StyleNested:
	default:
		return fmt.Errorf("%w: codegen.style must be \"flat\" or \"nested\", got %q", ErrInvalidConfig, c.Codegen.Style)
	}
	if c.Codegen.OutputName == "" {
		return fmt.Errorf("%w: codegen.output_name must not be empty", ErrInvalidConfig)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: rate_limit.requests_per_second must not be negative", ErrInvalidConfig)
	}

	for _, name := range c.InputNames() {
		in := c.Inputs[name]
		if in.Path == "" {
			return fmt.Errorf("%w: inputs.%s.path is required", ErrInvalidConfig, name)
		}
		if in.OutputPath == "" {
			return fmt.Errorf("%w: inputs.%s.output_path is required", ErrInvalidConfig, name)
		}
	}
	return nil
}
