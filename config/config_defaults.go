package config

import (
	"strings"

	"github.com/c2h5oh/datasize"
)

// 默认值
const (
	DefaultEngine                 = "signature"
	DefaultConfigDir              = "./adblock"
	DefaultCacheDir               = "./adblock/cache"
	DefaultUpdateIntervalHours    = 24
	DefaultStalenessHours         = 24
	DefaultMaxListSize            = 50 * datasize.MB
	DefaultMaxConcurrentDownloads = 5
	DefaultDownloadTimeoutSeconds = 30
	DefaultMaxLineLength          = 2000
	DefaultListenAddr             = "127.0.0.1:8080"
	DefaultLogLevel               = "info"
	DefaultLogFormat              = "text"
)

// setDefaultValues 设置配置文件中缺失字段的默认值
func setDefaultValues(cfg *Config, rawData []byte) {
	// WebUI 配置默认值
	if cfg.WebUI.ListenAddr == "" {
		cfg.WebUI.ListenAddr = DefaultListenAddr
	}

	// AdBlock 配置默认值
	setAdBlockDefaults(cfg, rawData)

	// System 配置默认值
	setSystemDefaults(cfg)
}

// setAdBlockDefaults 设置广告拦截配置的默认值
func setAdBlockDefaults(cfg *Config, rawData []byte) {
	ab := &cfg.AdBlock
	if ab.Engine == "" {
		ab.Engine = DefaultEngine
	}
	if ab.ConfigDir == "" {
		ab.ConfigDir = DefaultConfigDir
	}
	if ab.CacheDir == "" {
		ab.CacheDir = DefaultCacheDir
	}
	// update_interval_hours 显式写 0 表示关闭定时更新，所以只在缺省时设置
	if ab.UpdateIntervalHours == 0 && !strings.Contains(string(rawData), "update_interval_hours:") {
		ab.UpdateIntervalHours = DefaultUpdateIntervalHours
	}
	if ab.StalenessHours == 0 {
		ab.StalenessHours = DefaultStalenessHours
	}
	if ab.MaxListSize == 0 {
		ab.MaxListSize = DefaultMaxListSize
	}
	if ab.MaxConcurrentDownloads == 0 {
		ab.MaxConcurrentDownloads = DefaultMaxConcurrentDownloads
	}
	if ab.DownloadTimeoutSeconds == 0 {
		ab.DownloadTimeoutSeconds = DefaultDownloadTimeoutSeconds
	}
	if ab.MaxLineLength == 0 {
		ab.MaxLineLength = DefaultMaxLineLength
	}
}

// setSystemDefaults 设置系统配置的默认值
func setSystemDefaults(cfg *Config) {
	if cfg.System.LogLevel == "" {
		cfg.System.LogLevel = DefaultLogLevel
	}
	if cfg.System.LogFormat == "" {
		cfg.System.LogFormat = DefaultLogFormat
	}
}
