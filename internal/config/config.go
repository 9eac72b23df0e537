package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StoreConfig struct {
	Driver string
}

type Argon2Config struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	MaxSessions      int
	Argon2           Argon2Config
}

type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	Secure bool
}

type EventsConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
}

type JobsConfig struct {
	SweepSpec string
}

// BootstrapConfig optionally seeds one admin account at startup. Nothing is
// created unless all three fields are set.
type BootstrapConfig struct {
	AdminEmail    string
	AdminUsername string
	AdminPassword string
}

func (b BootstrapConfig) Enabled() bool {
	return b.AdminEmail != "" && b.AdminUsername != "" && b.AdminPassword != ""
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Store            StoreConfig
	Security         SecurityConfig
	Cookie           CookieConfig
	Events           EventsConfig
	Jobs             JobsConfig
	Bootstrap        BootstrapConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks the settings the auth core cannot run without.
func (c *AppConfig) Validate() error {
	var errs []error
	s := c.Security
	if s.JWTAccessSecret == "" {
		errs = append(errs, errors.New("security.jwtaccesssecret is required"))
	}
	if s.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("security.jwtrefreshsecret is required"))
	}
	if s.JWTAccessSecret != "" && s.JWTAccessSecret == s.JWTRefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}
	if s.JWTAccessTTL <= 0 || s.JWTRefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	} else if s.JWTRefreshTTL < s.JWTAccessTTL {
		errs = append(errs, errors.New("refresh lifetime must not be shorter than access lifetime"))
	}
	if s.MaxSessions < 1 {
		errs = append(errs, errors.New("security.maxsessions must be at least 1"))
	}
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}

// Load reads config.yaml, .env and ERMS_* variables. It does not validate;
// processes that need the auth settings call Validate themselves.
func Load() (*AppConfig, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("ERMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if cfg.IsProduction() {
		cfg.Cookie.Secure = true
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("store.driver", StoreDriverPostgres)

	// Secrets have no usable default; the empty values only register the keys for env lookup.
	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtrefreshsecret", "")
	v.SetDefault("security.jwtaccessttl", "24h")
	v.SetDefault("security.jwtrefreshttl", "168h") // 7 days
	v.SetDefault("security.maxsessions", 5)
	v.SetDefault("security.argon2.time", 3)
	v.SetDefault("security.argon2.memory", 64*1024)
	v.SetDefault("security.argon2.threads", 2)

	v.SetDefault("cookie.name", "refreshToken")
	v.SetDefault("cookie.path", "/")
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.secure", false)

	v.SetDefault("events.stream", "auth:events")
	v.SetDefault("events.group", "auth-auditors")
	v.SetDefault("events.consumer", "auditor-1")
	v.SetDefault("events.claiminterval", "30s")

	v.SetDefault("jobs.sweepspec", "0 0 * * * *") // hourly

	v.SetDefault("bootstrap.adminemail", "")
	v.SetDefault("bootstrap.adminusername", "")
	v.SetDefault("bootstrap.adminpassword", "")

	v.SetDefault("allowcorsorigins", []string{})
}
