package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// GetEnv 读取字符串环境变量，未设置时返回 defaultVal
func GetEnv(key string, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return defaultVal
}

// GetEnvAsInt 读取整型环境变量
func GetEnvAsInt(key string, defaultVal int) int {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(strVal)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Invalid integer in env, using default")
		return defaultVal
	}
	return val
}

// GetEnvAsInt64 读取 int64 环境变量
func GetEnvAsInt64(key string, defaultVal int64) int64 {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := strconv.ParseInt(strVal, 10, 64)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Invalid integer in env, using default")
		return defaultVal
	}
	return val
}

// GetEnvAsBool 读取布尔环境变量
func GetEnvAsBool(key string, defaultVal bool) bool {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(strVal)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Invalid boolean in env, using default")
		return defaultVal
	}
	return val
}

// GetEnvAsDuration 读取时长环境变量
func GetEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(strVal)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Invalid duration in env, using default")
		return defaultVal
	}
	return val
}
