package utils

import (
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable read by the tools,
// e.g. STACUBE_LOG_LEVEL or STACUBE_MAS_DSN.
const EnvPrefix = "STACUBE"

// Setting keys. Each is also a persistent flag of the CLI.
const (
	KeyLogLevel    = "log-level"
	KeyLogFormat   = "log-format"
	KeyLogOutput   = "log-output"
	KeyMemcache    = "memcache"
	KeyMasDSN      = "mas-dsn"
	KeyConcurrency = "concurrency"
	KeyProfile     = "profile"
	KeyMetricsDir  = "metrics-dir"
)

// Settings holds the process level configuration shared by all commands.
type Settings struct {
	LogLevel    string
	LogFormat   string
	LogOutput   string
	Memcache    string
	MasDSN      string
	Concurrency int
	Profile     string
	MetricsDir  string
}

// LoadEnvFiles reads .env then .env.local. Variables already set in the
// environment win.
func LoadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// NewViper returns a viper instance bound to the STACUBE_ environment
// with the defaults of every setting.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "auto")
	v.SetDefault(KeyLogOutput, "stderr")
	v.SetDefault(KeyConcurrency, runtime.NumCPU())
	return v
}

func SettingsFrom(v *viper.Viper) *Settings {
	s := &Settings{
		LogLevel:    v.GetString(KeyLogLevel),
		LogFormat:   v.GetString(KeyLogFormat),
		LogOutput:   v.GetString(KeyLogOutput),
		Memcache:    v.GetString(KeyMemcache),
		MasDSN:      v.GetString(KeyMasDSN),
		Concurrency: v.GetInt(KeyConcurrency),
		Profile:     v.GetString(KeyProfile),
		MetricsDir:  v.GetString(KeyMetricsDir),
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 1
	}
	return s
}

func (s *Settings) LogConfig() LogConfig {
	return LogConfig{Level: s.LogLevel, Format: s.LogFormat, Output: s.LogOutput}
}
