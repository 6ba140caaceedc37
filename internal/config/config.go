package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr      string
	JWTSecret string
	JWTTTLMin int

	DBDriver    string // "sqlite" or "postgres"
	SQLiteDSN   string
	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FCMCredentialsFile string

	UnreadSyncIntervalMin  int
	UnreadSyncWindowMin    int
	NearbySweepIntervalMin int
	NearbyTTLHours         int

	UploadDir       string
	DefaultTimezone string
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return def
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func MustLoad() Config {
	cfg := Config{
		Addr:      getenv("HTTP_ADDR", ":8080"),
		JWTSecret: getenv("JWT_SECRET", ""),
		JWTTTLMin: getint("JWT_TTL_MIN", 1440),

		DBDriver:    getenv("DB_DRIVER", "sqlite"),
		SQLiteDSN:   getenv("SQLITE_DSN", "file:chat.db?_pragma=foreign_keys(ON)"),
		PostgresDSN: getenv("POSTGRES_DSN", ""),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getint("REDIS_DB", 0),

		FCMCredentialsFile: getenv("FCM_CREDENTIALS_FILE", ""),

		UnreadSyncIntervalMin:  getint("UNREAD_SYNC_INTERVAL_MIN", 15),
		UnreadSyncWindowMin:    getint("UNREAD_SYNC_WINDOW_MIN", 60),
		NearbySweepIntervalMin: getint("NEARBY_SWEEP_INTERVAL_MIN", 15),
		NearbyTTLHours:         getint("NEARBY_TTL_HOURS", 24),

		UploadDir:       getenv("UPLOAD_DIR", "uploads"),
		DefaultTimezone: getenv("DEFAULT_TIMEZONE", "Asia/Jakarta"),
	}
	return cfg
}
