package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "EMES_"

// parseEnv loads dotenvFile (a missing file is not an error) and overlays
// any EMES_* variables present in the process environment. Variables that
// are already set in the environment win over the file.
//
// Recognised variables:
//
//	EMES_HTTP_ADDR, EMES_DATABASE_DSN, EMES_SECRET_KEY,
//	EMES_ACCESS_TOKEN_TTL, EMES_REFRESH_TOKEN_TTL (Go durations),
//	EMES_BCRYPT_COST, EMES_MAX_FAILED_LOGIN_ATTEMPTS,
//	EMES_REDIS_ADDR, EMES_REDIS_PASSWORD, EMES_REDIS_DB, EMES_LOG_LEVEL
//
// Malformed numeric or duration values panic, like a malformed JSON file.
func parseEnv(config *Config, dotenvFile string) {
	if dotenvFile != "" {
		_ = godotenv.Load(dotenvFile)
	}

	setString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.SecretKey, "SECRET_KEY")
	setDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL")
	setDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_TTL")
	setInt(&config.BcryptCost, "BCRYPT_COST")
	setInt(&config.MaxFailedLoginAttempts, "MAX_FAILED_LOGIN_ATTEMPTS")
	setString(&config.RedisAddr, "REDIS_ADDR")
	setString(&config.RedisPassword, "REDIS_PASSWORD")
	setInt(&config.RedisDB, "REDIS_DB")
	setString(&config.LogLevel, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(err)
	}
	*dst = n
}

func setDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}
