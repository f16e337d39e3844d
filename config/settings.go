// Package config 包含 framereplay 的配置管理相关功能。
// 所有配置在启动时从环境变量读取一次，之后只读。
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// OneFlag is true only when the variable is exactly "1".
type OneFlag bool

func (f *OneFlag) UnmarshalText(text []byte) error {
	*f = string(text) == "1"
	return nil
}

// AppSettings 是主配置结构体，字段对应环境变量。
type AppSettings struct {
	// ######################## target #######################
	ServerHost string `env:"SERVER_HOST" envDefault:"54.233.229.27" json:"server-host"`
	ServerPort uint16 `env:"SERVER_PORT" envDefault:"4000" json:"server-port"`

	// ######################## replay #######################
	// delay before each frame, in milliseconds
	FrameDelayMS  int     `env:"FRAME_DELAY_MS" envDefault:"25" json:"frame-delay-ms"`
	SendOnConnect OneFlag `env:"SEND_ON_CONNECT" json:"send-on-connect"`
	// interval between TCP keep-alives
	KeepAlivePeriod time.Duration `env:"KEEP_ALIVE_PERIOD" envDefault:"15s" json:"keep-alive-period"`

	// deadline for each frame write, 0 disables it
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s" json:"write-timeout"`

	ExitAfter time.Duration `env:"EXIT_AFTER" json:"exit-after"`

	// ######################## output ########################
	OutputStdout bool `env:"OUTPUT_STDOUT" json:"output-stdout"`

	// --- output file directory ---
	OutputFileDir string `env:"OUTPUT_FILE_DIRECTORY" json:"output-file-directory"`
	// MaxSize is the maximum size in megabytes of the log file before it gets rotated.
	OutputFileMaxSize int `env:"OUTPUT_FILE_MAX_SIZE" envDefault:"500" json:"output-file-max-size"`
	// MaxBackups is the maximum number of old log files to retain.
	OutputFileMaxBackups int `env:"OUTPUT_FILE_MAX_BACKUPS" envDefault:"10" json:"output-file-max-backups"`
	// MaxAge is the maximum number of days to retain old log files based on the
	// timestamp encoded in their filename.
	OutputFileMaxAge int `env:"OUTPUT_FILE_MAX_AGE" envDefault:"30" json:"output-file-max-age"`

	OutputPcap string `env:"OUTPUT_PCAP" json:"output-pcap"`

	// --- rate limit ---
	// recorded inbound chunks per second, 0 means unlimited
	RateLimitQPS int `env:"RATE_LIMIT_QPS" json:"rate-limit-qps"`

	// --- other ---
	Codec string `env:"CODEC" envDefault:"simple" json:"codec"`
}

// Load reads AppSettings from the process environment.
func Load() (*AppSettings, error) {
	var settings AppSettings
	if err := env.Parse(&settings); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	return &settings, nil
}

// Addr returns host:port of the replay target.
func (s *AppSettings) Addr() string {
	return net.JoinHostPort(s.ServerHost, strconv.Itoa(int(s.ServerPort)))
}

// FrameDelay returns the delay armed before each frame; negative values count as zero.
func (s *AppSettings) FrameDelay() time.Duration {
	if s.FrameDelayMS < 0 {
		return 0
	}
	return time.Duration(s.FrameDelayMS) * time.Millisecond
}
