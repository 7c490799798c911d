package types

// ServerConf 描述 PONG 监听端口的行为配置
type ServerConf struct {
	Host        string `ini:"host"`
	Port        int    `ini:"port"`
	BufferSize  int    `ini:"buffer_size"`
	ReuseAddr   bool   `ini:"reuse_addr"`
	IdleTimeout int    `ini:"idle_timeout"` // seconds, 0 disables the read deadline
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// WebConf 包含状态服务的配置
type WebConf struct {
	WebHost       string `ini:"web_host"`
	WebPort       int    `ini:"web_port"`
	WebUser       string `ini:"web_user"`
	WebPassword   string `ini:"web_password"`
	StatsInterval int    `ini:"stats_interval"` // seconds
}

// Config 是 pongd 的统一配置结构体
type Config struct {
	ServerConf `ini:"server"`
	LogConf    `ini:"log"`
	WebConf    `ini:"web"`
}

const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 6379
	DefaultBufferSize    = 1024
	DefaultStatsInterval = 2
)

// DefaultConfig returns the configuration used when no ini file is present.
func DefaultConfig() *Config {
	return &Config{
		ServerConf: ServerConf{
			Host:       DefaultHost,
			Port:       DefaultPort,
			BufferSize: DefaultBufferSize,
			ReuseAddr:  true,
		},
		LogConf: LogConf{Level: "info"},
		WebConf: WebConf{WebHost: DefaultHost, StatsInterval: DefaultStatsInterval},
	}
}
