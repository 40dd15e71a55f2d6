package config

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// ErrNoConfigPath is returned when no configuration file path is given.
const ErrNoConfigPath errors.Error = "no config path"

// CreateDefaultConfig 创建默认配置文件
func CreateDefaultConfig(filePath string) (err error) {
	if dir := filepath.Dir(filePath); dir != "" {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return errors.Annotate(err, "creating config dir: %w")
		}
	}

	return renameio.WriteFile(filePath, []byte(DefaultConfigContent), 0o644)
}

// LoadConfig 从 YAML 文件加载配置，文件不存在时自动创建默认配置
func LoadConfig(filePath string) (cfg *Config, err error) {
	if filePath == "" {
		return nil, ErrNoConfigPath
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		if err = CreateDefaultConfig(filePath); err != nil {
			return nil, errors.Annotate(err, "creating default config: %w")
		}

		data = []byte(DefaultConfigContent)
	} else if err != nil {
		return nil, errors.Annotate(err, "reading config: %w")
	}

	cfg = &Config{}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Annotate(err, "parsing config %q: %w", filePath)
	}

	setDefaultValues(cfg, data)

	return cfg, nil
}

// SaveConfig 原子地把配置写回 YAML 文件
func SaveConfig(filePath string, cfg *Config) (err error) {
	if filePath == "" {
		return ErrNoConfigPath
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Annotate(err, "encoding config: %w")
	}

	return renameio.WriteFile(filePath, data, 0o644)
}
