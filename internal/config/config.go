package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config represents the application configuration structure.
// It contains settings for the environment, DNS resolution, outbound HTTP,
// the discovery methods and the optional HTTP API.
type Config struct {
	// Environment specifies the current running environment (development, production, etc.)
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`
	// LogLevel overrides the environment's default log level when set (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" env-default:"" yaml:"logLevel"`

	// Resolver configures the DNS client used for SRV, MX and SOA/NS lookups
	Resolver struct {
		// Server is the recursive resolver queried, as host:port
		Server string `env:"RESOLVER_SERVER" env-default:"8.8.8.8:53" yaml:"server"`
		// Network is the transport used to reach the resolver (udp, tcp, tcp-tls)
		Network string `env:"RESOLVER_NETWORK" env-default:"udp" yaml:"network"`
		// Timeout bounds a single DNS exchange
		Timeout time.Duration `env:"RESOLVER_TIMEOUT" env-default:"5s" yaml:"timeout"`
	} `yaml:"resolver"`

	// HTTPClient configures the client used for autoconfig and autodiscover requests
	HTTPClient struct {
		// Timeout bounds a single HTTP request including reading the body
		Timeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" env-default:"15s" yaml:"timeout"`
		// InsecureSkipVerify disables certificate verification, many autodiscover hosts serve broken chains
		InsecureSkipVerify bool `env:"HTTP_CLIENT_INSECURE_SKIP_VERIFY" env-default:"false" yaml:"insecureSkipVerify"`
		// MaxBodyBytes caps how much of a response body is read
		MaxBodyBytes int64 `env:"HTTP_CLIENT_MAX_BODY_BYTES" env-default:"1048576" yaml:"maxBodyBytes"`
		// UserAgent is sent with every request
		UserAgent string `env:"HTTP_CLIENT_USER_AGENT" env-default:"mailscan/1.0" yaml:"userAgent"`
		// RequestsPerSecond limits outgoing requests of one process, 0 disables the limit
		RequestsPerSecond float64 `env:"HTTP_CLIENT_REQUESTS_PER_SECOND" env-default:"0" yaml:"requestsPerSecond"`
	} `yaml:"httpClient"`

	// Discovery contains settings of the individual discovery methods
	Discovery struct {
		// ISPDBURL is the base URL of the Thunderbird ISP database
		ISPDBURL string `env:"DISCOVERY_ISPDB_URL" env-default:"https://autoconfig.thunderbird.net/v1.1" yaml:"ispdbURL"`
		// MaxRedirects limits HTTP and autodiscover redirect chains
		MaxRedirects int `env:"DISCOVERY_MAX_REDIRECTS" env-default:"10" yaml:"maxRedirects"`
		// MXLookup enables the MX based autoconfig candidates
		MXLookup bool `env:"DISCOVERY_MX_LOOKUP" env-default:"true" yaml:"mxLookup"`
	} `yaml:"discovery"`

	// HTTP contains all HTTP server related configurations used by the serve command
	HTTP struct {
		// Addr is the address and port the HTTP server will listen on
		Addr string `env:"HTTP_ADDR" env-default:":8080" yaml:"addr"`
		// ReadTimeout is the maximum duration for reading the entire request, including the body
		ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"1m" yaml:"readTimeout"`
		// ReadHeaderTimeout is the amount of time allowed to read request headers
		ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"10s" yaml:"readHeaderTimeout"`
		// WriteTimeout is the maximum duration before timing out writes of the response
		WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"3m" yaml:"writeTimeout"`
		// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled
		IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"2m" yaml:"idleTimeout"`
		// RequestTimeout is the maximum time allowed for a whole scan request
		RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"2m" yaml:"requestTimeout"`
		// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header
		MaxHeaderBytes int `env:"HTTP_MAX_HEADER_BYTES" env-default:"0" yaml:"maxHeaderBytes"`
		// MetricsPath defines the URL path where metrics are exposed
		MetricsPath string `env:"HTTP_METRICS_PATH" env-default:"/metrics" yaml:"metricsPath"`
	} `yaml:"http"`

	// GracefulShutdownTimeout is the maximum duration to wait for ongoing requests to complete during shutdown
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"10s" yaml:"gracefulShutdownTimeout"` //nolint: lll
}

// Load fills a Config from the environment and, when configPath is not empty,
// from the yaml file at configPath. Variables from a .env file in the working
// directory are loaded first; a missing .env file is not an error.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("could not load .env file: %w", err)
	}

	var cfg Config
	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("could not read config from env: %w", err)
		}

		return &cfg, nil
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	return &cfg, nil
}
