package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blospray-dev/blospray/internal/errors"
)

const (
	// DefaultPort is the TCP port the render server listens on.
	DefaultPort = 5909

	// DefaultListen is the default render server listen address.
	DefaultListen = ":5909"

	// DefaultAdminListen is the default admin HTTP listen address.
	DefaultAdminListen = "127.0.0.1:5910"

	// DefaultPollInterval is the sleep between readability/task polls.
	DefaultPollInterval = time.Millisecond

	// DefaultTransferFunctionEntries is the resampled transfer function size.
	DefaultTransferFunctionEntries = 256

	// DefaultPluginDir is where shared object plugins are looked up.
	DefaultPluginDir = "plugins"
)

// Environment toggles, read once at startup.
const (
	EnvCompressFramebuffer  = "BLOSPRAY_COMPRESS_FRAMEBUFFER"
	EnvKeepFramebufferFiles = "BLOSPRAY_KEEP_FRAMEBUFFER_FILES"
	EnvDumpClientMessages   = "BLOSPRAY_DUMP_CLIENT_MESSAGES"
	EnvAbortOnRendererError = "BLOSPRAY_ABORT_ON_RENDERER_ERROR"
	EnvDumpServerState      = "BLOSPRAY_DUMP_SERVER_STATE"
)

// Config is the complete server configuration.
type Config struct {
	// Listen is the render server TCP address.
	Listen string `yaml:"listen,omitempty"`

	// AdminListen is the admin HTTP address (/healthz, /metrics, /state, /ws).
	// Empty disables the admin server.
	AdminListen string `yaml:"admin_listen,omitempty"`

	// PluginDir holds <kind>_<name>.so plugin modules.
	PluginDir string `yaml:"plugin_dir,omitempty"`

	// ScratchDir receives final-mode EXR files.
	ScratchDir string `yaml:"scratch_dir,omitempty"`

	// PollInterval is the sleep between polls while a frame is in flight.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// TransferFunctionEntries is the number of resampled transfer function entries.
	TransferFunctionEntries int `yaml:"transfer_function_entries,omitempty"`

	// Threads is the number of render workers (0 = CPU count).
	Threads int `yaml:"threads,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format,omitempty"`

	// Toggles are the process-wide flags.
	Toggles Toggles `yaml:"toggles,omitempty"`

	// Archive configures where completed final renders are stored.
	Archive ArchiveConfig `yaml:"archive,omitempty"`

	path string
}

// Toggles are process-wide flags with values fixed at startup.
type Toggles struct {
	CompressFramebuffer  bool `yaml:"compress_framebuffer"`
	KeepFramebufferFiles bool `yaml:"keep_framebuffer_files"`
	DumpClientMessages   bool `yaml:"dump_client_messages"`
	AbortOnRendererError bool `yaml:"abort_on_renderer_error"`
	DumpServerState      bool `yaml:"dump_server_state"`
}

// ArchiveConfig configures the final frame archive.
type ArchiveConfig struct {
	// Kind is "", "dir" or "s3". Empty disables archiving.
	Kind string `yaml:"kind,omitempty"`

	// Dir is the target directory for kind "dir".
	Dir string `yaml:"dir,omitempty"`

	// Bucket, Prefix, Region and Endpoint configure kind "s3".
	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Listen:                  DefaultListen,
		AdminListen:             DefaultAdminListen,
		PluginDir:               DefaultPluginDir,
		ScratchDir:              defaultScratchDir(),
		PollInterval:            DefaultPollInterval,
		TransferFunctionEntries: DefaultTransferFunctionEntries,
		LogLevel:                "info",
		LogFormat:               "text",
		Toggles: Toggles{
			CompressFramebuffer: true,
		},
	}
}

// defaultScratchDir prefers shared memory when available.
func defaultScratchDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Load reads configuration from a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("B801").WithDetail(path).Wrap(err)
	}

	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("B801").
			WithDetail("failed to parse " + path).
			WithSuggestion("Check that the file is valid YAML").
			Wrap(err)
	}

	cfg.path = path
	cfg.applyDefaults()
	return cfg, nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.PluginDir == "" {
		c.PluginDir = DefaultPluginDir
	}
	if c.ScratchDir == "" {
		c.ScratchDir = defaultScratchDir()
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.TransferFunctionEntries == 0 {
		c.TransferFunctionEntries = DefaultTransferFunctionEntries
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// ApplyEnv overrides the toggles from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	toggles := []struct {
		env   string
		field *bool
	}{
		{EnvCompressFramebuffer, &c.Toggles.CompressFramebuffer},
		{EnvKeepFramebufferFiles, &c.Toggles.KeepFramebufferFiles},
		{EnvDumpClientMessages, &c.Toggles.DumpClientMessages},
		{EnvAbortOnRendererError, &c.Toggles.AbortOnRendererError},
		{EnvDumpServerState, &c.Toggles.DumpServerState},
	}
	for _, tg := range toggles {
		raw, ok := lookup(tg.env)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return errors.New("B802").WithDetailf("%s=%q is not a boolean", tg.env, raw)
		}
		*tg.field = v
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("B802").WithDetail("listen address must not be empty")
	}
	if c.PollInterval < 0 {
		return errors.New("B802").WithDetail("poll_interval must not be negative")
	}
	if c.TransferFunctionEntries < 2 {
		return errors.New("B802").WithDetail("transfer_function_entries must be at least 2")
	}
	if c.Threads < 0 {
		return errors.New("B802").WithDetail("threads must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("B802").WithDetailf("unknown log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.New("B802").WithDetailf("unknown log_format %q", c.LogFormat)
	}
	switch c.Archive.Kind {
	case "":
	case "dir":
		if c.Archive.Dir == "" {
			return errors.New("B802").WithDetail("archive.dir is required for kind dir")
		}
	case "s3":
		if c.Archive.Bucket == "" {
			return errors.New("B802").WithDetail("archive.bucket is required for kind s3")
		}
	default:
		return errors.New("B802").WithDetailf("unknown archive kind %q", c.Archive.Kind)
	}
	return nil
}
