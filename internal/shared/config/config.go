package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/ini.v1"
	"pong_nexus/internal/shared/types"
)

// LoadIni 加载 pongd.ini 行为配置文件。
// A missing file is not an error: the defaults from types.DefaultConfig are kept.
func LoadIni(fileName string) (*types.Config, error) {
	cfg := types.DefaultConfig()

	if _, err := os.Stat(fileName); err == nil {
		iniFile, err := ini.Load(fileName)
		if err != nil {
			return nil, err
		}
		if err := iniFile.MapTo(cfg); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	overrideFromEnvInt(&cfg.ServerConf.Port, "PONG_PORT")
	overrideFromEnvStr(&cfg.ServerConf.Host, "PONG_HOST")
	overrideFromEnvStr(&cfg.LogConf.Level, "PONG_LOG_LEVEL")
	overrideFromEnvStr(&cfg.WebConf.WebHost, "PONG_WEB_HOST")

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置中不能在运行时恢复的错误。
func Validate(cfg *types.Config) error {
	if cfg.ServerConf.Port < 0 || cfg.ServerConf.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.ServerConf.Port)
	}
	if cfg.ServerConf.BufferSize < 1 {
		return fmt.Errorf("buffer_size must be positive, got %d", cfg.ServerConf.BufferSize)
	}
	if cfg.ServerConf.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must not be negative, got %d", cfg.ServerConf.IdleTimeout)
	}
	if cfg.WebConf.WebPort < 0 || cfg.WebConf.WebPort > 65535 {
		return fmt.Errorf("web port %d out of range", cfg.WebConf.WebPort)
	}
	if cfg.WebConf.StatsInterval <= 0 {
		cfg.WebConf.StatsInterval = types.DefaultStatsInterval
	}
	return nil
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvStr(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
