package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sadopc/fitarchive/internal/store"
)

// Keys understood by Load. Command-line flags bind to the same names.
const (
	KeyDataDir      = "data_dir"
	KeyDebug        = "debug"
	KeyVerbose      = "verbose"
	KeyForcePolicy  = "force_policy"
	KeyUnitSystem   = "unit_system"
	KeyWeekStartDay = "week_start_day"
)

const envPrefix = "FITARCHIVE"

// Options holds the runtime configuration of one invocation.
type Options struct {
	DataDir      string `mapstructure:"data_dir"`
	Debug        bool   `mapstructure:"debug"`
	Verbose      bool   `mapstructure:"verbose"`
	ForcePolicy  string `mapstructure:"force_policy"`   // replace | append
	UnitSystem   string `mapstructure:"unit_system"`    // default for fresh archives
	WeekStartDay int    `mapstructure:"week_start_day"` // default for fresh archives, 0 = Sunday
}

// DatabaseDir is the directory holding the current storage engine files.
func (o *Options) DatabaseDir() string {
	return filepath.Join(o.DataDir, "database")
}

// New returns a viper instance that reads FITARCHIVE_* environment
// variables. .env files in envPath are loaded first without overriding
// variables that are already set.
func New(envPath string) *viper.Viper {
	loadEnv(envPath)

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{KeyDataDir, KeyDebug, KeyVerbose, KeyForcePolicy, KeyUnitSystem, KeyWeekStartDay} {
		_ = v.BindEnv(key)
	}
	return v
}

// Load resolves the options from defaults, the optional config.yaml inside
// the data directory, the environment and any flags bound to v, in
// increasing priority.
func Load(v *viper.Viper) (*Options, error) {
	dataDir, err := store.DefaultDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	v.SetDefault(KeyDataDir, dataDir)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyForcePolicy, "replace")
	v.SetDefault(KeyUnitSystem, "metric")
	v.SetDefault(KeyWeekStartDay, 1)

	v.SetConfigFile(filepath.Join(v.GetString(KeyDataDir), "config.yaml"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

func (o *Options) validate() error {
	switch o.ForcePolicy {
	case "replace", "append":
	default:
		return fmt.Errorf("invalid %s %q: want replace or append", KeyForcePolicy, o.ForcePolicy)
	}
	switch o.UnitSystem {
	case "metric", "statute":
	default:
		return fmt.Errorf("invalid %s %q: want metric or statute", KeyUnitSystem, o.UnitSystem)
	}
	if o.WeekStartDay < 0 || o.WeekStartDay > 6 {
		return fmt.Errorf("invalid %s %d: want 0..6", KeyWeekStartDay, o.WeekStartDay)
	}
	if o.DataDir == "" {
		return fmt.Errorf("%s must not be empty", KeyDataDir)
	}
	return nil
}

func loadEnv(envPath string) {
	if envPath == "" {
		envPath = "."
	}
	for _, name := range []string{".env", ".env.local"} {
		_ = godotenv.Load(filepath.Join(envPath, name))
	}
}
