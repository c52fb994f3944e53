package config

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/archive"
	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"github.com/pseudomuto/stagekeeper/pkg/database"
	"gopkg.in/yaml.v3"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

type (
	// Config is the pipeline definition: where stages write, how they run and
	// where their outcomes are recorded.
	Config struct {
		// Pipeline is the pipeline_name of every run log entry
		Pipeline string `yaml:"pipeline"`

		// LogDir receives the pipeline log and per step logs
		LogDir string `yaml:"log_dir"`

		// StepTimeout is the default wall clock budget of a stage
		StepTimeout time.Duration `yaml:"step_timeout"`

		// RunLog is where step attempts are recorded
		RunLog RunLog `yaml:"run_log"`

		// Archive optionally uploads step logs to object storage
		Archive *archive.Config `yaml:"archive,omitempty"`

		// Targets are the databases SQL stages write to, by name
		Targets map[string]*Target `yaml:"targets"`

		// Stages run in Order
		Stages []*Stage `yaml:"stages"`

		// Dev configures the local warehouse started by `dev up`
		Dev Dev `yaml:"dev"`

		path string
	}

	// RunLog selects the run log backend.
	RunLog struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	}

	// Target is a named database connection.
	Target struct {
		Driver          string              `yaml:"driver"`
		DSN             string              `yaml:"dsn"`
		MaxOpenConns    int                 `yaml:"max_open_conns,omitempty"`
		MaxIdleConns    int                 `yaml:"max_idle_conns,omitempty"`
		ConnMaxLifetime time.Duration       `yaml:"conn_max_lifetime,omitempty"`
		TLS             *database.TLSConfig `yaml:"tls,omitempty"`
	}

	// Stage is one pipeline step. It either runs Command or applies SQL to
	// Target.
	Stage struct {
		Name    string        `yaml:"name"`
		Title   string        `yaml:"title,omitempty"`
		Order   int           `yaml:"order,omitempty"`
		Timeout time.Duration `yaml:"timeout,omitempty"`

		// Command is an argv run as the stage process
		Command []string `yaml:"command,omitempty"`

		Target     string   `yaml:"target,omitempty"`
		Scripts    []string `yaml:"scripts,omitempty"`
		Truncate   []string `yaml:"truncate,omitempty"`
		Statements []string `yaml:"statements,omitempty"`
		Counts     []string `yaml:"counts,omitempty"`
		QuoteAware bool     `yaml:"quote_aware,omitempty"`
	}

	// Dev configures the local ClickHouse container.
	Dev struct {
		Version  string `yaml:"version,omitempty"`
		Port     int    `yaml:"port,omitempty"`
		HTTPPort int    `yaml:"http_port,omitempty"`
	}
)

// LoadConfig parses a pipeline definition from r.
//
// ${VAR} references are replaced with environment values before decoding so
// DSNs and credentials can stay out of the file. Unset variables expand to an
// empty string. Defaults are filled in for anything optional, but the result
// isn't validated; call Validate for that.
//
// Example:
//
//	cfg, err := config.LoadConfig(strings.NewReader(`
//	pipeline: listings
//	targets:
//	  warehouse:
//	    driver: clickhouse
//	    dsn: ${WAREHOUSE_DSN}
//	stages:
//	  - name: warehouse
//	    target: warehouse
//	    scripts: [sql/warehouse.sql]
//	`))
func LoadConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}

	expanded := envRef.ReplaceAllStringFunc(string(data), func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})

	var cfg Config
	if err := yaml.NewDecoder(strings.NewReader(expanded)).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadConfigFile loads a config from path. Relative paths inside the file
// (log_dir, scripts, sqlite DSNs) are resolved against the file's directory.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	cfg, err := LoadConfig(f)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve path: %s", path)
	}

	cfg.path = abs
	cfg.resolvePaths(filepath.Dir(abs))

	return cfg, nil
}

// Path returns the absolute path the config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) applyDefaults() {
	if c.Pipeline == "" {
		c.Pipeline = consts.DefaultPipelineName
	}

	if c.LogDir == "" {
		c.LogDir = consts.DefaultLogDir
	}

	if c.StepTimeout == 0 {
		c.StepTimeout = consts.DefaultStepTimeout
	}

	if c.RunLog.Driver == "" {
		c.RunLog.Driver = database.DriverSQLite
	}

	if c.RunLog.DSN == "" && c.RunLog.Driver == database.DriverSQLite {
		c.RunLog.DSN = filepath.Join(c.LogDir, consts.DefaultRunLogFile)
	}

	for i, s := range c.Stages {
		if s == nil {
			continue
		}

		if s.Order == 0 {
			s.Order = i + 1
		}

		if s.Title == "" {
			s.Title = s.Name
		}
	}
}

func (c *Config) resolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	// the default run log lives in the log dir, keep it there
	defaultRunLog := c.RunLog.DSN == filepath.Join(c.LogDir, consts.DefaultRunLogFile)

	c.LogDir = resolve(c.LogDir)

	if c.RunLog.Driver == database.DriverSQLite {
		if defaultRunLog {
			c.RunLog.DSN = filepath.Join(c.LogDir, consts.DefaultRunLogFile)
		} else if isSQLitePath(c.RunLog.DSN) {
			c.RunLog.DSN = resolve(c.RunLog.DSN)
		}
	}

	for _, t := range c.Targets {
		if t != nil && t.Driver == database.DriverSQLite && isSQLitePath(t.DSN) {
			t.DSN = resolve(t.DSN)
		}
	}

	for _, s := range c.Stages {
		if s == nil {
			continue
		}

		for i, script := range s.Scripts {
			s.Scripts[i] = resolve(script)
		}
	}
}

// Validate checks the config is runnable.
func (c *Config) Validate() error {
	if len(c.Stages) == 0 {
		return errors.New("no stages configured")
	}

	if c.StepTimeout < 0 {
		return errors.New("step_timeout must be positive")
	}

	switch c.RunLog.Driver {
	case database.DriverSQLite, database.DriverPostgres, database.DriverMySQL:
	default:
		return errors.Errorf("run_log: unsupported driver: %q", c.RunLog.Driver)
	}

	if c.RunLog.DSN == "" {
		return errors.New("run_log: dsn is required")
	}

	for name, t := range c.Targets {
		if t == nil {
			return errors.Errorf("target %s: empty definition", name)
		}

		if err := t.Database().Validate(); err != nil {
			return errors.Wrapf(err, "target %s", name)
		}
	}

	if c.Archive.Enabled() {
		if err := c.Archive.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(c.Stages))
	orders := make(map[int]string, len(c.Stages))
	for i, s := range c.Stages {
		if s == nil || s.Name == "" {
			return errors.Errorf("stage %d: name is required", i+1)
		}

		if seen[s.Name] {
			return errors.Errorf("stage %s: duplicate name", s.Name)
		}
		seen[s.Name] = true

		if s.Order < 1 {
			return errors.Errorf("stage %s: order must be >= 1, got %d", s.Name, s.Order)
		}

		if other, ok := orders[s.Order]; ok {
			return errors.Errorf("stage %s: order %d already used by %s", s.Name, s.Order, other)
		}
		orders[s.Order] = s.Name

		if err := c.validateStage(s); err != nil {
			return errors.Wrapf(err, "stage %s", s.Name)
		}
	}

	return nil
}

func (c *Config) validateStage(s *Stage) error {
	if s.Timeout < 0 {
		return errors.New("timeout must be positive")
	}

	switch {
	case s.IsCommand() && s.HasSQL():
		return errors.New("command and SQL are mutually exclusive")
	case !s.IsCommand() && !s.HasSQL():
		return errors.New("either command or SQL is required")
	case s.IsCommand():
		return nil
	}

	if s.Target == "" {
		return errors.New("target is required for SQL stages")
	}

	if _, ok := c.Targets[s.Target]; !ok {
		return errors.Errorf("unknown target: %s", s.Target)
	}

	return nil
}

// Stage returns the stage with the given name.
func (c *Config) Stage(name string) (*Stage, error) {
	for _, s := range c.Stages {
		if s != nil && s.Name == name {
			return s, nil
		}
	}

	return nil, errors.Errorf("unknown stage: %s", name)
}

// Target returns the target with the given name.
func (c *Config) Target(name string) (*Target, error) {
	t, ok := c.Targets[name]
	if !ok || t == nil {
		return nil, errors.Errorf("unknown target: %s", name)
	}

	return t, nil
}

// OrderedStages returns the stages sorted by Order.
func (c *Config) OrderedStages() []*Stage {
	stages := make([]*Stage, 0, len(c.Stages))
	for _, s := range c.Stages {
		if s != nil {
			stages = append(stages, s)
		}
	}

	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Order < stages[j].Order
	})

	return stages
}

// TimeoutFor returns the stage's own timeout or the configured default.
func (c *Config) TimeoutFor(s *Stage) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}

	return c.StepTimeout
}

// RunLogDatabase returns the connection settings of the run log.
func (c *Config) RunLogDatabase() database.Config {
	return database.Config{Driver: c.RunLog.Driver, DSN: c.RunLog.DSN}
}

// Database returns the connection settings of the target.
func (t *Target) Database() database.Config {
	return database.Config{
		Driver:          t.Driver,
		DSN:             t.DSN,
		TLS:             t.TLS,
		MaxOpenConns:    t.MaxOpenConns,
		MaxIdleConns:    t.MaxIdleConns,
		ConnMaxLifetime: t.ConnMaxLifetime,
	}
}

// IsCommand reports whether the stage runs an external command.
func (s *Stage) IsCommand() bool {
	return len(s.Command) > 0
}

// HasSQL reports whether the stage has anything to apply to a target.
func (s *Stage) HasSQL() bool {
	return len(s.Scripts)+len(s.Statements)+len(s.Truncate)+len(s.Counts) > 0
}

func isSQLitePath(dsn string) bool {
	return dsn != "" && !strings.HasPrefix(dsn, "file:") && !strings.HasPrefix(dsn, ":memory:")
}
