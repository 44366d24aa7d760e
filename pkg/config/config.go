// Package config 加载保存与加载流程的配置。
package config

import (
	"github.com/lk2023060901/garden-objstream/internal/filetables"
	"github.com/lk2023060901/garden-objstream/pkg/log"
	"github.com/lk2023060901/garden-objstream/pkg/resource"
	"github.com/lk2023060901/garden-objstream/pkg/stream"
	"github.com/lk2023060901/garden-objstream/pkg/util/hardware"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
	"github.com/lk2023060901/garden-objstream/pkg/util/viper"
)

// EnvPrefix 是覆盖配置项的环境变量前缀，例如 OBJSTREAM_SAVE_WORKERS。
const EnvPrefix = "OBJSTREAM"

// StreamConfig 配置单个对象的操作码流。
type StreamConfig struct {
	PageSize int `mapstructure:"pageSize" json:"pageSize"`
	// MaxBytes 为 0 时按可用内存的 1/8 推算。
	MaxBytes int64 `mapstructure:"maxBytes" json:"maxBytes"`
}

type SaveConfig struct {
	Protected bool `mapstructure:"protected" json:"protected"`
	// Workers 为 0 时使用 CPU 数。
	Workers int `mapstructure:"workers" json:"workers"`
}

type LoadConfig struct {
	VerifyChecksum bool   `mapstructure:"verifyChecksum" json:"verifyChecksum"`
	LoadImports    bool   `mapstructure:"loadImports" json:"loadImports"`
	ImportAttempts uint   `mapstructure:"importAttempts" json:"importAttempts"`
	MaxTablesSize  uint32 `mapstructure:"maxTablesSize" json:"maxTablesSize"`
}

// Config 是全部配置。
type Config struct {
	Log    log.Config   `mapstructure:"log" json:"log"`
	Stream StreamConfig `mapstructure:"stream" json:"stream"`
	Save   SaveConfig   `mapstructure:"save" json:"save"`
	Load   LoadConfig   `mapstructure:"load" json:"load"`
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":           "info",
		"log.format":          "console",
		"log.stdout":          true,
		"stream.pageSize":     stream.DefaultPageSize,
		"stream.maxBytes":     0,
		"save.protected":      false,
		"save.workers":        0,
		"load.verifyChecksum": true,
		"load.loadImports":    true,
		"load.importAttempts": 3,
		"load.maxTablesSize":  filetables.DefaultMaxTablesSize,
	}
}

// Default 返回不依赖配置文件的默认配置。
func Default() *Config {
	cfg, err := build(viper.New(""))
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load 从 YAML 或 JSON 文件加载配置，未出现的项使用默认值，环境变量优先于文件。
func Load(path string) (*Config, error) {
	v := viper.New(EnvPrefix)
	if err := v.LoadFile(path); err != nil {
		return nil, merr.WrapErrIoFailed(err.Error(), "load config "+path)
	}
	return build(v)
}

func build(v *viper.Config) (*Config, error) {
	v.SetDefaults(defaults())
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("decode config: %s", err.Error())
	}
	cfg.resolve()
	return cfg, nil
}

// resolve 把 0 值换算成与机器相关的默认值。
func (c *Config) resolve() {
	if c.Save.Workers <= 0 {
		c.Save.Workers = hardware.GetCPUNum()
	}
	if c.Stream.MaxBytes == 0 {
		c.Stream.MaxBytes = int64(hardware.GetMemoryCount() / 8)
	}
}

// SaveOptions 返回与配置对应的保存选项。
func (c *Config) SaveOptions() []resource.Option {
	return []resource.Option{
		resource.WithProtected(c.Save.Protected),
		resource.WithWorkers(c.Save.Workers),
		resource.WithPageSize(c.Stream.PageSize),
		resource.WithMaxBytes(c.Stream.MaxBytes),
	}
}

// LoadOptions 返回与配置对应的加载选项。导入器只在 load.loadImports 开启时生效。
func (c *Config) LoadOptions(importer resource.Importer) []resource.Option {
	opts := []resource.Option{
		resource.WithVerifyChecksum(c.Load.VerifyChecksum),
		resource.WithImportAttempts(c.Load.ImportAttempts),
		resource.WithMaxTablesSize(c.Load.MaxTablesSize),
		resource.WithWorkers(c.Save.Workers),
	}
	if c.Load.LoadImports && importer != nil {
		opts = append(opts, resource.WithImporter(importer))
	}
	return opts
}
