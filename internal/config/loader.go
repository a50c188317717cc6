package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	toolerrors "github.com/3leaps/toolup/internal/errors"
	"github.com/3leaps/toolup/internal/logging"
)

// LoadOptions select the user-controlled layers.
type LoadOptions struct {
	// File is an explicit config file. When empty the XDG config directory
	// is searched for config.toml, config.yaml and config.yml.
	File string
	// Overrides are flag values keyed by koanf path, e.g. "install.dir".
	Overrides map[string]interface{}
	// SkipEnv ignores TOOLUP_* variables.
	SkipEnv bool
}

// rawBytesProvider feeds embedded bytes to koanf.
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Load merges every layer, derives directory defaults and validates the result.
// All failures are ConfigErrors.
func Load(opts LoadOptions) (*Config, error) {
	logger := logging.Get("config")
	k := koanf.New(".")
	sources := []string{"defaults"}

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, toolerrors.Wrap(err, toolerrors.ErrInternal, "failed to load defaults")
	}
	known := make(map[string]bool)
	for _, key := range k.Keys() {
		known[key] = true
	}
	defaultRepo, defaultBinary := k.String("tool.repo"), k.String("tool.binary_name")

	// 2. User config file
	path, explicit := opts.File, opts.File != ""
	if !explicit {
		path = findUserConfig()
	}
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, toolerrors.Wrapf(statErr, toolerrors.ErrConfig, "config file %s", path)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, toolerrors.Wrapf(err, toolerrors.ErrConfig, "failed to load config from %s", path)
		}
		sources = append(sources, path)
		logger.Debug().Str("path", path).Msg("Loaded config file")
	}

	// 3. Environment. Nested keys use a double underscore so single
	// underscores can stay inside key names.
	if !opts.SkipEnv {
		cb := func(s string) string {
			key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
			if !known[key] {
				return ""
			}
			return key
		}
		envK := koanf.New(".")
		if err := envK.Load(env.Provider(EnvPrefix, ".", cb), nil); err != nil {
			return nil, toolerrors.Wrap(err, toolerrors.ErrConfig, "failed to load env vars")
		}
		if len(envK.Keys()) > 0 {
			if err := k.Merge(envK); err != nil {
				return nil, toolerrors.Wrap(err, toolerrors.ErrConfig, "failed to merge env vars")
			}
			sources = append(sources, "env")
		}
	}

	// 4. Flags
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, toolerrors.Wrap(err, toolerrors.ErrConfig, "failed to apply flags")
		}
		sources = append(sources, "flags")
	}

	// A repo chosen above the defaults brings its own binary name unless one
	// was given too.
	if repo := k.String("tool.repo"); repo != defaultRepo && k.String("tool.binary_name") == defaultBinary {
		if err := k.Set("tool.binary_name", InferBinaryName(repo)); err != nil {
			return nil, toolerrors.Wrap(err, toolerrors.ErrInternal, "failed to derive binary name")
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, toolerrors.Wrap(err, toolerrors.ErrConfig, "failed to unmarshal configuration")
	}
	cfg.Source = sources
	cfg.applyDerivedDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	logger.Debug().Strs("sources", sources).Str("repo", cfg.Tool.Repo).Str("dir", cfg.Install.Dir).Msg("Configuration loaded")
	return &cfg, nil
}

func findUserConfig() string {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		p := filepath.Join(xdg.ConfigHome, AppName, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, toolerrors.Newf(toolerrors.ErrConfig, "unsupported config file type %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

// Describe renders the sources for diagnostics.
func (c *Config) Describe() string {
	return fmt.Sprintf("%s (from %s)", c.Tool.Repo, strings.Join(c.Source, " < "))
}
