package config

// DefaultConfigContent 默认配置文件内容，包含详细说明
const DefaultConfigContent = `# midoriadblock 配置文件

# Web 管理接口配置
webui:
  # 是否启用 Web 管理接口，默认 true
  enabled: true
  # 监听地址，默认 127.0.0.1:8080
  listen_addr: "127.0.0.1:8080"

# 广告拦截配置
adblock:
  # 是否启用广告拦截
  enable: true
  # 匹配引擎：signature（签名索引）或 urlfilter
  engine: signature
  # 自定义规则文件 custom.list 所在目录
  config_dir: ./adblock
  # 下载的规则缓存目录
  cache_dir: ./adblock/cache
  # 过滤列表，按顺序加载
  filters:
    - uri: https://easylist.to/easylist/easylist.txt
      active: true
    - uri: https://easylist.to/easylist/easyprivacy.txt
      active: false
  # 定时更新间隔（小时），0 表示关闭
  update_interval_hours: 24
  # 缓存比这个时间新的列表在非强制更新时跳过（小时）
  staleness_hours: 24
  # 单个列表的最大大小
  max_list_size: 50MB
  # 同时下载的列表数
  max_concurrent_downloads: 5
  # 单次下载超时（秒）
  download_timeout_seconds: 30
  # 判定缓存大小，0 表示不限制，规则重新加载时清空
  decision_cache_size: 0
  # 每行最多解析的字节数，超出部分丢弃
  max_line_length: 2000

# 系统配置
system:
  # 日志级别: debug, info, warn, error. 默认 info
  log_level: "info"
  # 日志格式: text, json, default. 默认 text
  log_format: "text"
`
