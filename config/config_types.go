package config

import (
	"github.com/c2h5oh/datasize"
)

// Config 是整个服务的配置
type Config struct {
	WebUI   WebUIConfig   `yaml:"webui" json:"webui"`
	AdBlock AdBlockConfig `yaml:"adblock" json:"adblock"`
	System  SystemConfig  `yaml:"system" json:"system"`
}

// WebUIConfig Web 管理接口配置
type WebUIConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr,omitempty" json:"listen_addr"`
}

// FilterListSource 是一个过滤列表来源：URI 加上是否启用
type FilterListSource struct {
	URI    string `yaml:"uri" json:"uri"`
	Active bool   `yaml:"active" json:"active"`
}

// AdBlockConfig 广告拦截配置
type AdBlockConfig struct {
	Enable bool   `yaml:"enable" json:"enable"`
	Engine string `yaml:"engine,omitempty" json:"engine"`

	// ConfigDir 存放自定义规则文件 custom.list
	ConfigDir string `yaml:"config_dir,omitempty" json:"config_dir"`
	// CacheDir 存放下载的规则文件，文件名为 URI 的 MD5
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir"`

	Filters []FilterListSource `yaml:"filters,omitempty" json:"filters"`

	UpdateIntervalHours    int               `yaml:"update_interval_hours" json:"update_interval_hours"`
	StalenessHours         int               `yaml:"staleness_hours,omitempty" json:"staleness_hours"`
	MaxListSize            datasize.ByteSize `yaml:"max_list_size,omitempty" json:"max_list_size"`
	MaxConcurrentDownloads int               `yaml:"max_concurrent_downloads,omitempty" json:"max_concurrent_downloads"`
	DownloadTimeoutSeconds int               `yaml:"download_timeout_seconds,omitempty" json:"download_timeout_seconds"`

	// DecisionCacheSize 为 0 表示不限制大小
	DecisionCacheSize int `yaml:"decision_cache_size,omitempty" json:"decision_cache_size"`
	MaxLineLength     int `yaml:"max_line_length,omitempty" json:"max_line_length"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogLevel  string `yaml:"log_level,omitempty" json:"log_level"`
	LogFormat string `yaml:"log_format,omitempty" json:"log_format"`
}
