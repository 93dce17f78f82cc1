package ops

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ordercore/internal/errors"
	"ordercore/internal/executor"
	"ordercore/pkg/conn"
	"ordercore/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultInterval = 3 * time.Second
	envPrefix       = "ORDERCORE_"
)

// Executor kinds.
const (
	ExecutorNone  = "none"
	ExecutorPaper = "paper"
	ExecutorHTTP  = "http"
)

// FileConfig mirrors the JSON and YAML config layout.
type FileConfig struct {
	Store    StoreConfig    `json:"store" yaml:"store"`
	Worker   WorkerConfig   `json:"worker" yaml:"worker"`
	Executor ExecutorConfig `json:"executor" yaml:"executor"`
	Symbols  []SymbolConfig `json:"symbols" yaml:"symbols"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

type StoreConfig struct {
	Host         string            `json:"host" yaml:"host"`
	Port         int               `json:"port" yaml:"port"`
	User         string            `json:"user" yaml:"user"`
	Password     string            `json:"password" yaml:"password"`
	Database     string            `json:"database" yaml:"database"`
	SSLMode      string            `json:"sslMode" yaml:"sslMode"`
	Params       map[string]string `json:"params" yaml:"params"`
	MaxOpenConns int               `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns int               `json:"maxIdleConns" yaml:"maxIdleConns"`
}

type WorkerConfig struct {
	IntervalMs int  `json:"intervalMs" yaml:"intervalMs"`
	ClaimLimit int  `json:"claimLimit" yaml:"claimLimit"`
	Bell       bool `json:"bell" yaml:"bell"`
}

type ExecutorConfig struct {
	Kind      string `json:"kind" yaml:"kind"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Token     string `json:"token" yaml:"token"`
	TimeoutMs int    `json:"timeoutMs" yaml:"timeoutMs"`
}

// SymbolConfig lists the account settings applied to a symbol at startup.
type SymbolConfig struct {
	Name       string `json:"name" yaml:"name"`
	MarginType string `json:"marginType" yaml:"marginType"`
	Leverage   int    `json:"leverage" yaml:"leverage"`
}

type MetricsConfig struct {
	Addr          string `json:"addr" yaml:"addr"`
	PyroscopeAddr string `json:"pyroscopeAddr" yaml:"pyroscopeAddr"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Store         conn.Option
	Interval      time.Duration
	ClaimLimit    int
	Bell          bool
	Executor      ExecutorSpec
	Symbols       []executor.SymbolSettings
	MetricsAddr   string
	PyroscopeAddr string
}

type ExecutorSpec struct {
	Kind string
	executor.HTTPConfig
}

// Load reads the config file at path (empty means defaults only), applies
// environment overrides and validates the result. Variables already set in
// the process environment win over the ones in envFiles.
func Load(path string, envFiles ...string) (Loaded, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}

	dotenv, err := readEnvFiles(envFiles)
	if err != nil {
		return Loaded{}, err
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Loaded{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Loaded{}, err
	}
	return cfg.resolve(), nil
}

// ReadFile decodes a config file by its extension.
func ReadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := sonic.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse json %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse yaml %s", path)
		}
	default:
		return cfg, errors.Wrapf(exception.ErrConfigUnsupportedFormat, "extension %q", ext)
	}
	return cfg, nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "stat env file %s", f)
		}
		existing = append(existing, f)
	}
	if len(existing) == 0 {
		return map[string]string{}, nil
	}

	env, err := godotenv.Read(existing...)
	if err != nil {
		return nil, errors.Wrap(err, "read env files")
	}
	return env, nil
}

func applyEnv(cfg *FileConfig, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Join(exception.ErrConfigInvalid, errors.Wrapf(err, "%s%s", envPrefix, name))
		}
		*dst = n
		return nil
	}

	str("DB_HOST", &cfg.Store.Host)
	str("DB_USER", &cfg.Store.User)
	str("DB_PASSWORD", &cfg.Store.Password)
	str("DB_NAME", &cfg.Store.Database)
	str("DB_SSLMODE", &cfg.Store.SSLMode)
	str("EXECUTOR", &cfg.Executor.Kind)
	str("EXECUTOR_ENDPOINT", &cfg.Executor.Endpoint)
	str("EXECUTOR_TOKEN", &cfg.Executor.Token)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	str("PYROSCOPE_ADDR", &cfg.Metrics.PyroscopeAddr)

	if err := num("DB_PORT", &cfg.Store.Port); err != nil {
		return err
	}
	if err := num("CLAIM_LIMIT", &cfg.Worker.ClaimLimit); err != nil {
		return err
	}

	if v, ok := lookup(envPrefix + "INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return errors.Join(exception.ErrConfigInvalid, errors.Wrapf(err, "%sINTERVAL", envPrefix))
		}
		if d < time.Millisecond {
			return errors.Wrapf(exception.ErrConfigInvalid, "%sINTERVAL %s must be >= 1ms", envPrefix, d)
		}
		cfg.Worker.IntervalMs = int(d / time.Millisecond)
	}
	return nil
}

// Validate rejects values the worker cannot run with.
func (c FileConfig) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Wrapf(exception.ErrConfigInvalid, format, args...)
	}

	if c.Store.Port < 0 || c.Store.Port > 65535 {
		return invalid("store.port %d", c.Store.Port)
	}
	if c.Store.MaxOpenConns < 0 || c.Store.MaxIdleConns < 0 {
		return invalid("store pool limits must be >= 0")
	}
	if c.Worker.IntervalMs < 0 {
		return invalid("worker.intervalMs %d", c.Worker.IntervalMs)
	}
	if c.Worker.ClaimLimit < 0 {
		return invalid("worker.claimLimit %d", c.Worker.ClaimLimit)
	}

	switch kind := c.executorKind(); kind {
	case ExecutorNone, ExecutorPaper:
	case ExecutorHTTP:
		if c.Executor.Endpoint == "" {
			return invalid("executor.endpoint is required for kind %s", kind)
		}
	default:
		return invalid("executor.kind %q", c.Executor.Kind)
	}
	if c.Executor.TimeoutMs < 0 {
		return invalid("executor.timeoutMs %d", c.Executor.TimeoutMs)
	}

	seen := make(map[string]struct{}, len(c.Symbols))
	for _, s := range c.Symbols {
		name := strings.ToUpper(strings.TrimSpace(s.Name))
		if name == "" {
			return invalid("symbol name is required")
		}
		if _, ok := seen[name]; ok {
			return invalid("symbol %s listed twice", name)
		}
		seen[name] = struct{}{}
		if s.Leverage < 0 {
			return invalid("symbol %s leverage %d", name, s.Leverage)
		}
	}
	return nil
}

func (c FileConfig) executorKind() string {
	kind := strings.ToLower(strings.TrimSpace(c.Executor.Kind))
	if kind == "" {
		return ExecutorNone
	}
	return kind
}

func (c FileConfig) resolve() Loaded {
	interval := defaultInterval
	if c.Worker.IntervalMs > 0 {
		interval = time.Duration(c.Worker.IntervalMs) * time.Millisecond
	}

	symbols := make([]executor.SymbolSettings, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		symbols = append(symbols, executor.SymbolSettings{
			Symbol:     strings.ToUpper(strings.TrimSpace(s.Name)),
			MarginType: strings.ToUpper(strings.TrimSpace(s.MarginType)),
			Leverage:   s.Leverage,
		})
	}

	return Loaded{
		Store: conn.Option{
			Host:         c.Store.Host,
			Port:         c.Store.Port,
			User:         c.Store.User,
			Password:     c.Store.Password,
			Database:     c.Store.Database,
			SSLMode:      c.Store.SSLMode,
			Params:       c.Store.Params,
			MaxOpenConns: c.Store.MaxOpenConns,
			MaxIdleConns: c.Store.MaxIdleConns,
		},
		Interval:   interval,
		ClaimLimit: c.Worker.ClaimLimit,
		Bell:       c.Worker.Bell,
		Executor: ExecutorSpec{
			Kind: c.executorKind(),
			HTTPConfig: executor.HTTPConfig{
				Endpoint: c.Executor.Endpoint,
				Token:    c.Executor.Token,
				Timeout:  time.Duration(c.Executor.TimeoutMs) * time.Millisecond,
			},
		},
		Symbols:       symbols,
		MetricsAddr:   c.Metrics.Addr,
		PyroscopeAddr: c.Metrics.PyroscopeAddr,
	}
}
