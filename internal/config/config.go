// Package config loads decant.toml.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	semver "github.com/Masterminds/semver/v3"

	"decant/internal/dataflow"
	"decant/internal/diag"
	"decant/internal/locks"
	"decant/internal/ownership"
	"decant/internal/version"
)

// FileName is the name looked up from the working directory upwards.
const FileName = "decant.toml"

// ErrVersionMismatch is returned when [decant].min_version rejects the
// running tool.
var ErrVersionMismatch = errors.New("decant version does not satisfy min_version")

type Config struct {
	Decant    DecantSection    `toml:"decant"`
	Ownership OwnershipSection `toml:"ownership"`
	Locks     LocksSection     `toml:"locks"`
	Codegen   CodegenSection   `toml:"codegen"`
	Driver    DriverSection    `toml:"driver"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

type DecantSection struct {
	MinVersion string `toml:"min_version"`
}

type OwnershipSection struct {
	MinConfidence       float64 `toml:"min_confidence"`
	MaxPaths            int     `toml:"max_paths"`
	LengthPairThreshold int     `toml:"length_pair_threshold"`
}

// LocksSection extends the builtin acquire/release function lists.
type LocksSection struct {
	Acquire []string `toml:"acquire"`
	Release []string `toml:"release"`
}

type CodegenSection struct {
	EmitReportComments bool `toml:"emit_report_comments"`
	Indent             int  `toml:"indent"`
}

type DriverSection struct {
	Jobs  int  `toml:"jobs"`
	Cache bool `toml:"cache"`
}

// Default returns the configuration used without a decant.toml.
func Default() Config {
	own := ownership.DefaultConfig()
	return Config{
		Ownership: OwnershipSection{
			MinConfidence:       own.MinConfidence,
			MaxPaths:            own.MaxPaths,
			LengthPairThreshold: dataflow.DefaultLengthThreshold,
		},
		Codegen: CodegenSection{Indent: 4},
		Driver:  DriverSection{Jobs: runtime.GOMAXPROCS(0), Cache: true},
	}
}

// Find walks up from startDir looking for decant.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the nearest decant.toml above startDir, or the defaults
// when there is none.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Load reads path. Keys the file does not define keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	def := Default()
	if !meta.IsDefined("driver", "jobs") || cfg.Driver.Jobs <= 0 {
		cfg.Driver.Jobs = def.Driver.Jobs
	}
	if !meta.IsDefined("codegen", "indent") {
		cfg.Codegen.Indent = def.Codegen.Indent
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and the version constraint.
func (c *Config) Validate() error {
	if c.Ownership.MinConfidence < 0 || c.Ownership.MinConfidence > 1 {
		return fmt.Errorf("[ownership].min_confidence must be within 0..1, got %g", c.Ownership.MinConfidence)
	}
	if c.Ownership.MaxPaths <= 0 {
		return fmt.Errorf("[ownership].max_paths must be positive, got %d", c.Ownership.MaxPaths)
	}
	if c.Ownership.LengthPairThreshold <= 0 {
		return fmt.Errorf("[ownership].length_pair_threshold must be positive, got %d", c.Ownership.LengthPairThreshold)
	}
	if c.Codegen.Indent < 1 || c.Codegen.Indent > 8 {
		return fmt.Errorf("[codegen].indent must be within 1..8, got %d", c.Codegen.Indent)
	}
	return CheckVersion(c.Decant.MinVersion, version.Version)
}

// CheckVersion reports ErrVersionMismatch when v does not satisfy the
// constraint. An empty constraint accepts every version.
func CheckVersion(constraint, v string) error {
	if strings.TrimSpace(constraint) == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("[decant].min_version %q: %w", constraint, err)
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("tool version %q: %w", v, err)
	}
	if !c.Check(sv) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrVersionMismatch, v, constraint)
	}
	return nil
}

// ErrorCode classifies an error returned by Load or Validate.
func ErrorCode(err error) diag.Code {
	if errors.Is(err, ErrVersionMismatch) {
		return diag.CfgVersionMismatch
	}
	return diag.CfgInvalid
}

// OwnershipConfig converts the [ownership] section.
func (c *Config) OwnershipConfig() ownership.Config {
	return ownership.Config{MinConfidence: c.Ownership.MinConfidence, MaxPaths: c.Ownership.MaxPaths}
}

// LocksConfig appends the configured functions to the builtin lists.
func (c *Config) LocksConfig() locks.Config {
	lc := locks.DefaultConfig()
	lc.Acquire = append(append([]string{}, lc.Acquire...), c.Locks.Acquire...)
	lc.Release = append(append([]string{}, lc.Release...), c.Locks.Release...)
	return lc
}

// IndentString is one indentation level of the generated code.
func (c *Config) IndentString() string {
	return strings.Repeat(" ", c.Codegen.Indent)
}

// Fingerprint hashes every setting that changes translation output. Jobs
// and caching do not.
func (c *Config) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "conf=%g paths=%d pairs=%d\n", c.Ownership.MinConfidence, c.Ownership.MaxPaths, c.Ownership.LengthPairThreshold)
	fmt.Fprintf(h, "acquire=%s release=%s\n", strings.Join(c.Locks.Acquire, ","), strings.Join(c.Locks.Release, ","))
	fmt.Fprintf(h, "comments=%t indent=%d\n", c.Codegen.EmitReportComments, c.Codegen.Indent)
	return hex.EncodeToString(h.Sum(nil))
}
