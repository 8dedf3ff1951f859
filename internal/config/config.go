// Package config reads the command line tool's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jkbrsn/httpscope"
)

// Config holds the settings of the httpscope command.
type Config struct {
	LogLevel   string
	LogConsole bool

	// Fields lists the parameter names extracted for every measurement.
	Fields []string
	// Label is the label format name, "verbose" or "compact".
	Label string

	Concurrency int
	Timeout     time.Duration
	StatusErrs  bool
	SampleRate  float64

	HARFile      string
	OTLPEndpoint string
	ServiceName  string
	MetricsAddr  string
	LiveAddr     string
}

// FromEnv builds a Config from HTTPSCOPE_* and LOG_LEVEL environment variables.
func FromEnv() Config {
	cfg := Config{
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Label:        getEnv("HTTPSCOPE_LABEL", httpscope.LabelVerbose.String()),
		Concurrency:  getEnvInt("HTTPSCOPE_CONCURRENCY", 4),
		Timeout:      getEnvDuration("HTTPSCOPE_TIMEOUT", 30*time.Second),
		StatusErrs:   getEnvBool("HTTPSCOPE_STATUS_ERRORS", true),
		SampleRate:   getEnvFloat("HTTPSCOPE_METRICS_SAMPLE_RATE", 1),
		HARFile:      getEnv("HTTPSCOPE_HAR_FILE", ""),
		OTLPEndpoint: getEnv("HTTPSCOPE_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("HTTPSCOPE_SERVICE_NAME", "httpscope"),
		MetricsAddr:  getEnv("HTTPSCOPE_METRICS_ADDR", ""),
		LiveAddr:     getEnv("HTTPSCOPE_LIVE_ADDR", ""),
		LogConsole:   getEnvBool("LOG_CONSOLE", false),
	}
	if v := strings.TrimSpace(os.Getenv("HTTPSCOPE_FIELDS")); v != "" {
		cfg.Fields = splitCSV(v)
	} else {
		cfg.Fields = httpscope.DefaultFields().Names()
	}
	return cfg
}

// Validate checks that the Config is usable.
func (c Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout cannot be negative"))
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("metrics sample rate must be within [0, 1], got %g", c.SampleRate))
	}
	if label := strings.ToLower(strings.TrimSpace(c.Label)); label != "verbose" && label != "compact" {
		errs = append(errs, fmt.Errorf("unknown label format %q", c.Label))
	}
	if c.FieldSet().Len() == 0 {
		errs = append(errs, fmt.Errorf("no known fields in %v", c.Fields))
	}
	if c.MetricsAddr != "" && c.MetricsAddr == c.LiveAddr {
		errs = append(errs, errors.New("metrics and live feed cannot share an address"))
	}
	return errors.Join(errs...)
}

// FieldSet returns the configured fields. Unknown names are ignored.
func (c Config) FieldSet() httpscope.FieldSet {
	return httpscope.ParseFields(c.Fields...)
}

// LabelFormat returns the configured label format.
func (c Config) LabelFormat() httpscope.LabelFormat {
	return httpscope.ParseLabelFormat(c.Label)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// splitCSV splits comma-separated tokens trimming whitespace and skipping empties.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
