package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration. Values come from, in increasing
// priority: built-in defaults, an optional YAML file (-config), ZEBRA_*
// environment variables, and explicitly set command-line flags.
type Config struct {
	Address        string
	MetricsAddr    string
	SessionTimeout time.Duration
	SocketTimeout  time.Duration
	Generator      string

	Debug     bool
	LogFormat string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	RateLimit       float64 // sessions per second per client, 0 disables
	GlobalRateLimit float64 // sessions per second overall, 0 disables
	RateBurst       int
	TrustProxy      bool

	AllowedOrigins  []string // websocket origin patterns; empty means same host only
	MaxMessageSize  int64
	ShutdownTimeout time.Duration
}

type option struct {
	name  string
	def   any
	usage string
}

var options = []option{
	{"address", "0.0.0.0:8080", "public listen address for /session and /ws"},
	{"metrics", ":9100", "metrics, health and dashboard listen address (empty disables)"},
	{"session-timeout", 60, "seconds a token stays valid without being paired"},
	{"socket-timeout", 30, "seconds a paired relay may stay open"},
	{"generator", "lcg", "token sequence: lcg, or counter for debugging"},
	{"debug", false, "enable debug logs"},
	{"log-format", "json", "log encoding: json or console"},
	{"redis-addr", "", "publish lifecycle events to this Redis server"},
	{"redis-password", "", "Redis password"},
	{"redis-db", 0, "Redis database"},
	{"redis-channel", "zebra:events", "Redis pub/sub channel for lifecycle events"},
	{"rate-limit", 2.0, "sessions per second per client address (0 disables)"},
	{"global-rate-limit", 0.0, "sessions per second across all clients (0 disables)"},
	{"rate-burst", 10, "burst size for session rate limits"},
	{"trust-proxy", false, "key rate limits on X-Forwarded-For"},
	{"allowed-origins", "*", "comma separated websocket origin patterns, e.g. app.example.com,*.example.org (empty allows same host only)"},
	{"max-message-size", 1 << 20, "largest websocket message relayed, in bytes"},
	{"shutdown-timeout", 10, "seconds to wait for in-flight requests on shutdown"},
}

// aliases are the underscore spellings accepted by earlier releases.
var aliases = map[string]string{
	"session_timeout": "session-timeout",
	"socket_timeout":  "socket-timeout",
}

func viperKey(flagName string) string { return strings.ReplaceAll(flagName, "-", "_") }

// loadConfig parses args (without the program name).
func loadConfig(args []string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZEBRA")
	v.AutomaticEnv()

	fs := flag.NewFlagSet("zebra-signal", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	for _, o := range options {
		v.SetDefault(viperKey(o.name), o.def)
		switch d := o.def.(type) {
		case string:
			fs.String(o.name, d, o.usage)
		case int:
			fs.Int(o.name, d, o.usage)
		case float64:
			fs.Float64(o.name, d, o.usage)
		case bool:
			fs.Bool(o.name, d, o.usage)
		}
	}
	for alias, name := range aliases {
		if f := fs.Lookup(name); f != nil {
			fs.Int(alias, f.Value.(flag.Getter).Get().(int), "alias for -"+name)
		}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", *configPath, err)
		}
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			v.Set(viperKey(f.Name), f.Value.String())
		}
	})

	cfg := Config{
		Address:         v.GetString("address"),
		MetricsAddr:     v.GetString("metrics"),
		SessionTimeout:  time.Duration(v.GetInt("session_timeout")) * time.Second,
		SocketTimeout:   time.Duration(v.GetInt("socket_timeout")) * time.Second,
		Generator:       v.GetString("generator"),
		Debug:           v.GetBool("debug"),
		LogFormat:       v.GetString("log_format"),
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		RedisDB:         v.GetInt("redis_db"),
		RedisChannel:    v.GetString("redis_channel"),
		RateLimit:       v.GetFloat64("rate_limit"),
		GlobalRateLimit: v.GetFloat64("global_rate_limit"),
		RateBurst:       v.GetInt("rate_burst"),
		TrustProxy:      v.GetBool("trust_proxy"),
		AllowedOrigins:  splitList(v.GetString("allowed_origins")),
		MaxMessageSize:  v.GetInt64("max_message_size"),
		ShutdownTimeout: time.Duration(v.GetInt("shutdown_timeout")) * time.Second,
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.Address == "" {
		errs = append(errs, errors.New("address must not be empty"))
	}
	if c.SessionTimeout <= 0 {
		errs = append(errs, errors.New("session-timeout must be positive"))
	}
	if c.SocketTimeout <= 0 {
		errs = append(errs, errors.New("socket-timeout must be positive"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("max-message-size must be positive"))
	}
	if c.RateLimit < 0 || c.GlobalRateLimit < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
