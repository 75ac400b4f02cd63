// Package config loads the batch run configuration from flags, SCRAPE_*
// environment variables and an optional config file, in that precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"scrape/internal/fetch"
)

const (
	// Output formats
	FormatJSONL = "jsonl"
	FormatXLSX  = "xlsx"

	// Default values
	DefaultWorkers      = 4
	DefaultTimeout      = 30 * time.Second
	DefaultLogLevel     = "info"
	DefaultJobName      = "scrape"
	DefaultFlushEvery   = 60 * time.Second
	DefaultColumn       = "A"
	DefaultEnvPrefix    = "SCRAPE"
	defaultRetryBackoff = time.Second
)

// Config holds everything a batch run needs.
type Config struct {
	// Schema definition file (JSON or YAML).
	SchemaPath string

	// Inputs is a text file with one URL per line. Alternatively URLs are
	// read from a spreadsheet column.
	Inputs     string
	XLSXPath   string
	Sheet      string
	Column     string
	SkipHeader bool

	// Output path; empty writes to stdout.
	Output string
	Format string

	Workers  int
	FailFast bool

	Timeout         time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration

	// Encoding overrides the schema's and the sniffed charset.
	Encoding string

	LogLevel string

	Datadog    bool
	DDTags     string
	JobName    string
	FlushEvery time.Duration
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Column:          DefaultColumn,
		Format:          FormatJSONL,
		Workers:         DefaultWorkers,
		Timeout:         DefaultTimeout,
		RetryAttempts:   fetch.DefaultRetryPolicy.MaxAttempts,
		RetryBackoff:    defaultRetryBackoff,
		RetryMaxBackoff: fetch.DefaultRetryPolicy.MaxBackoff,
		LogLevel:        DefaultLogLevel,
		JobName:         DefaultJobName,
		FlushEvery:      DefaultFlushEvery,
	}
}

// Load parses args and merges them over the environment and the file named
// by --config. Usage text goes to stderr. On -h it returns pflag.ErrHelp.
func Load(name string, args []string, stderr io.Writer) (*Config, error) {
	cfg := DefaultConfig()

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	defineFlags(fs, cfg)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage of %s:\n", name)
		fmt.Fprintf(stderr, "\nEvaluate one extraction schema over many URLs.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nEvery option can also be set as %s_<NAME> (dashes become underscores),\n", DefaultEnvPrefix)
		fmt.Fprintf(stderr, "e.g. %s_WORKERS=8, or as a key in the --config file.\n", DefaultEnvPrefix)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	populate(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defineFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String("config", "", "Config file (yaml, json or toml)")
	fs.String("schema", cfg.SchemaPath, "Schema definition file (.json, .yaml)")
	fs.String("inputs", cfg.Inputs, "Text file with one URL per line")
	fs.String("xlsx", cfg.XLSXPath, "Spreadsheet to read URLs from instead of --inputs")
	fs.String("sheet", cfg.Sheet, "Sheet name in --xlsx (default: first sheet)")
	fs.String("column", cfg.Column, "Column holding URLs in --xlsx")
	fs.Bool("skip-header", cfg.SkipHeader, "Skip the first row of --xlsx")
	fs.StringP("output", "o", cfg.Output, "Output file (default: stdout)")
	fs.String("format", cfg.Format, "Output format: jsonl or xlsx")
	fs.Int("workers", cfg.Workers, "Concurrent documents")
	fs.Bool("fail-fast", cfg.FailFast, "Stop at the first input that cannot be loaded")
	fs.Duration("timeout", cfg.Timeout, "Per-attempt HTTP timeout")
	fs.Int("retry-attempts", cfg.RetryAttempts, "Attempts per URL including the first")
	fs.Duration("retry-backoff", cfg.RetryBackoff, "Initial retry backoff, doubled per attempt")
	fs.Duration("retry-max-backoff", cfg.RetryMaxBackoff, "Backoff ceiling")
	fs.String("encoding", cfg.Encoding, "Force body charset (e.g. windows-1251)")
	fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.Bool("datadog", cfg.Datadog, "Submit metrics to Datadog")
	fs.String("dd-tags", cfg.DDTags, "Extra Datadog tags, comma separated")
	fs.String("job", cfg.JobName, "Datadog job tag")
	fs.Duration("flush-every", cfg.FlushEvery, "Datadog flush interval")
}

func populate(v *viper.Viper, cfg *Config) {
	cfg.SchemaPath = v.GetString("schema")
	cfg.Inputs = v.GetString("inputs")
	cfg.XLSXPath = v.GetString("xlsx")
	cfg.Sheet = v.GetString("sheet")
	cfg.Column = v.GetString("column")
	cfg.SkipHeader = v.GetBool("skip-header")
	cfg.Output = v.GetString("output")
	cfg.Format = strings.ToLower(strings.TrimSpace(v.GetString("format")))
	cfg.Workers = v.GetInt("workers")
	cfg.FailFast = v.GetBool("fail-fast")
	cfg.Timeout = v.GetDuration("timeout")
	cfg.RetryAttempts = v.GetInt("retry-attempts")
	cfg.RetryBackoff = v.GetDuration("retry-backoff")
	cfg.RetryMaxBackoff = v.GetDuration("retry-max-backoff")
	cfg.Encoding = v.GetString("encoding")
	cfg.LogLevel = strings.ToLower(v.GetString("log-level"))
	cfg.Datadog = v.GetBool("datadog")
	cfg.DDTags = v.GetString("dd-tags")
	cfg.JobName = v.GetString("job")
	cfg.FlushEvery = v.GetDuration("flush-every")
}

// Validate checks the configuration for a runnable batch.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SchemaPath) == "" {
		return errors.New("schema is required")
	}

	hasInputs, hasXLSX := c.Inputs != "", c.XLSXPath != ""
	switch {
	case hasInputs && hasXLSX:
		return errors.New("use either inputs or xlsx, not both")
	case !hasInputs && !hasXLSX:
		return errors.New("one of inputs or xlsx is required")
	case hasXLSX && strings.TrimSpace(c.Column) == "":
		return errors.New("column is required with xlsx")
	}

	switch c.Format {
	case FormatJSONL:
	case FormatXLSX:
		if c.Output == "" {
			return errors.New("xlsx format needs an output file")
		}
	default:
		return fmt.Errorf("invalid format: %s (must be jsonl or xlsx)", c.Format)
	}

	if c.Workers < 1 {
		return errors.New("workers must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.RetryAttempts < 1 {
		return errors.New("retry attempts must be positive")
	}
	if c.RetryBackoff < 0 || c.RetryMaxBackoff < c.RetryBackoff {
		return errors.New("retry backoff must be non-negative and not above the maximum")
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Datadog && c.FlushEvery <= 0 {
		return errors.New("flush interval must be positive")
	}
	return nil
}

// RetryPolicy returns the loader retry policy for this run.
func (c *Config) RetryPolicy() fetch.RetryPolicy {
	p := fetch.DefaultRetryPolicy
	p.MaxAttempts = c.RetryAttempts
	p.BaseBackoff = c.RetryBackoff
	p.MaxBackoff = c.RetryMaxBackoff
	return p
}

// Level returns the slog level for LogLevel, info when it is unknown.
func (c *Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", s)
}
