// Package config loads the settings for one account's sync runs.
//
// Values are layered: defaults, then the YAML file, then PUSHSYNC_*
// environment variables (a .env file is read first if present). The result
// is checked against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PUSHSYNC_"

// Config is the full set of run settings.
type Config struct {
	AccountID           string `yaml:"account_id" json:"account_id"`
	BaseURL             string `yaml:"base_url" json:"base_url"`
	ClientID            string `yaml:"client_id" json:"client_id"`
	UserID              string `yaml:"user_id" json:"user_id"`
	AccessToken         string `yaml:"access_token" json:"access_token"`
	DataDir             string `yaml:"data_dir" json:"data_dir"`
	KeyFile             string `yaml:"key_file" json:"key_file"`
	PageSize            int    `yaml:"page_size" json:"page_size"`
	MaxInFlight         int    `yaml:"max_in_flight" json:"max_in_flight"`
	CommitFailurePolicy string `yaml:"commit_failure_policy" json:"commit_failure_policy"`
	LogLevel            string `yaml:"log_level" json:"log_level"`
	MetricsFile         string `yaml:"metrics_file" json:"metrics_file"`
}

// Default returns the settings used when nothing overrides them.
// AccountID, BaseURL and ClientID have no default.
func Default() Config {
	return Config{
		DataDir:             "./pushsync-data",
		PageSize:            500,
		MaxInFlight:         4,
		CommitFailurePolicy: "advance",
		LogLevel:            "info",
	}
}

// StorePath is the SQLite database file under DataDir.
func (c Config) StorePath() string {
	return filepath.Join(c.DataDir, "store.db")
}

// CheckpointDir is the Pebble directory under DataDir.
func (c Config) CheckpointDir() string {
	return filepath.Join(c.DataDir, "checkpoints")
}

// Load reads path over the defaults. Unknown keys are an error.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv overlays PUSHSYNC_* variables found by lookup onto cfg.
// Pass os.LookupEnv for the process environment.
func FromEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	strs := map[string]*string{
		"ACCOUNT_ID":            &cfg.AccountID,
		"BASE_URL":              &cfg.BaseURL,
		"CLIENT_ID":             &cfg.ClientID,
		"USER_ID":               &cfg.UserID,
		"ACCESS_TOKEN":          &cfg.AccessToken,
		"DATA_DIR":              &cfg.DataDir,
		"KEY_FILE":              &cfg.KeyFile,
		"COMMIT_FAILURE_POLICY": &cfg.CommitFailurePolicy,
		"LOG_LEVEL":             &cfg.LogLevel,
		"METRICS_FILE":          &cfg.MetricsFile,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PAGE_SIZE":     &cfg.PageSize,
		"MAX_IN_FLIGHT": &cfg.MaxInFlight,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}
	return cfg, nil
}

// Validate checks cfg against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	val := ctx.Encode(c)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}
	return nil
}

// ValidationError reports settings that do not satisfy the schema.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + e.Details
}

// Resolve runs the full layering: .env, file, environment, validation.
func Resolve(path, dotenv string) (Config, error) {
	if err := LoadDotEnv(dotenv); err != nil {
		return Config{}, err
	}
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err = FromEnv(cfg, os.LookupEnv)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
