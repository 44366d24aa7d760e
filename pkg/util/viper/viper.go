package viper

import (
	"io"
	"path/filepath"
	"strings"

	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
//
// 设置了环境变量前缀时，形如 PREFIX_SAVE_WORKERS 的环境变量会覆盖 save.workers。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。envPrefix 为空时不读取环境变量。
func New(envPrefix string) *Config {
	v := spfviper.New()
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return &Config{v: v}
}

// SetDefault 设置 key 的默认值。Unmarshal 只会对设置过默认值或出现在文件中的 key 应用环境变量。
func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

// SetDefaults 批量设置默认值。
func (c *Config) SetDefaults(values map[string]any) {
	for k, v := range values {
		c.v.SetDefault(k, v)
	}
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)
	if typ := configType(path); typ != "" {
		c.v.SetConfigType(typ)
	}
	return c.v.ReadInConfig()
}

// LoadReader 从 r 读取 typ（yaml 或 json）格式的配置。
func (c *Config) LoadReader(r io.Reader, typ string) error {
	c.v.SetConfigType(typ)
	return c.v.ReadConfig(r)
}

func configType(path string) string {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
		return ""
	}
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst any) error {
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// 子配置由默认值、配置文件和环境变量合并而来，与 Unmarshal 看到的内容一致。
func (c *Config) UnmarshalKey(key string, dst any) error {
	var node any = c.v.AllSettings()
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, ok := node.(map[string]any)
		if !ok {
			node = nil
			break
		}
		node = m[part]
	}
	section, ok := node.(map[string]any)
	if !ok {
		return c.v.UnmarshalKey(key, dst)
	}
	sub := spfviper.New()
	if err := sub.MergeConfigMap(section); err != nil {
		return err
	}
	return sub.Unmarshal(dst)
}

func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}
