package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds the application's configuration values.
type Config struct {
	AppName string `json:"appname"`
	AppEnv  string `json:"appenv"`
	AppPort uint16 `json:"appport"`
	GinMode string `json:"ginmode"`

	DBDriver string `json:"dbdriver"`
	DBHost   string `json:"dbhost"`
	DBPort   uint16 `json:"dbport"`
	DBName   string `json:"dbname"`
	DBUSER   string `json:"dbuser"`
	DBPass   string `json:"dbpass"`

	APIToken string `json:"-"`

	AdmissionSequencer   string `json:"admission_sequencer"`
	AdmissionTZ          string `json:"admission_tz"`
	AdmissionMaxAttempts int    `json:"admission_max_attempts"`

	LogLevel  string `json:"loglevel"`
	LogFormat string `json:"logformat"`

	RateLimit       int           `json:"ratelimit_limit"`
	RateLimitWindow time.Duration `json:"ratelimit_window"`
}

var config *Config
var once sync.Once

// LoadConfig loads the environment variables from an optional .env file and
// returns a singleton Config instance.
func LoadConfig() *Config {
	once.Do(func() {
		if err := godotenv.Load(); err != nil && os.Getenv("APPENV") != "test" {
			log.Debug().Err(err).Msg("no .env file loaded, using process environment")
		}

		appPort, _ := strconv.ParseUint(getEnv("APPPORT", "8000"), 10, 16)
		dbPort, _ := strconv.ParseUint(getEnv("DBPORT", "3306"), 10, 16)
		maxAttempts, _ := strconv.Atoi(getEnv("ADMISSION_MAX_ATTEMPTS", "3"))
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		rateLimit, _ := strconv.Atoi(getEnv("RATELIMIT_LIMIT", "60"))
		rateWindow, err := time.ParseDuration(getEnv("RATELIMIT_WINDOW", "1m"))
		if err != nil {
			rateWindow = time.Minute
		}

		config = &Config{
			AppName: getEnv("APPNAME", "lis-backend"),
			AppEnv:  getEnv("APPENV", "development"),
			AppPort: uint16(appPort),
			GinMode: getEnv("GINMODE", "release"),

			DBDriver: getEnv("DBDRIVER", "mysql"),
			DBHost:   os.Getenv("DBHOST"),
			DBPort:   uint16(dbPort),
			DBName:   os.Getenv("DBNAME"),
			DBUSER:   os.Getenv("DBUSER"),
			DBPass:   os.Getenv("DBPASS"),

			APIToken: os.Getenv("APITOKEN"),

			AdmissionSequencer:   getEnv("ADMISSION_SEQUENCER", "counter"),
			AdmissionTZ:          getEnv("ADMISSION_TZ", "UTC"),
			AdmissionMaxAttempts: maxAttempts,

			LogLevel:  getEnv("LOGLEVEL", "info"),
			LogFormat: getEnv("LOGFORMAT", "json"),

			RateLimit:       rateLimit,
			RateLimitWindow: rateWindow,
		}
	})
	return config
}

// ResetConfigForTest drops the cached configuration so the next LoadConfig
// re-reads the environment. Only meant for tests.
func ResetConfigForTest() {
	config = nil
	once = sync.Once{}
}

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	return value
}

// IsTest reports whether the service runs in the test environment.
func (c *Config) IsTest() bool {
	return c.AppEnv == "test"
}

// AdmissionLocation resolves the time zone admission months are computed in.
func (c *Config) AdmissionLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.AdmissionTZ)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMISSION_TZ %q: %w", c.AdmissionTZ, err)
	}
	return loc, nil
}

// dialector builds the gorm dialector for the configured driver. The test
// environment always gets a private in-memory SQLite database.
func (c *Config) dialector() (gorm.Dialector, error) {
	if c.IsTest() {
		dsn := fmt.Sprintf("file:lis_test_%d?mode=memory&cache=shared&_foreign_keys=1", time.Now().UnixNano())
		return sqlite.Open(dsn), nil
	}

	switch c.DBDriver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			c.DBUSER, c.DBPass, c.DBHost, c.DBPort, c.DBName)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			c.DBHost, c.DBPort, c.DBUSER, c.DBPass, c.DBName)
		return postgres.Open(dsn), nil
	case "sqlite":
		name := c.DBName
		if name == "" {
			name = "lis.db"
		}
		return sqlite.Open(name + "?_foreign_keys=1"), nil
	default:
		return nil, fmt.Errorf("unsupported DBDRIVER %q", c.DBDriver)
	}
}

// ConnectDatabase establishes a connection to the configured database.
// Driver errors are translated so duplicate keys surface as gorm.ErrDuplicatedKey.
func ConnectDatabase() (*gorm.DB, error) {
	cfg := LoadConfig()
	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.IsTest() {
		level = logger.Silent
	}
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(log.Logger, level),
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}

	if cfg.IsTest() {
		// One connection keeps every query on the same in-memory database.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	return db, nil
}
