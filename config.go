package passage

import (
	"time"

	"github.com/dpup/passage/internal/config"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Filename of the standard configuration file.
const ConfigFile = "passage.yaml"

// ConfigKeyInfo contains metadata about a known configuration key.
// This is re-exported from internal/config for public API use.
type ConfigKeyInfo = config.ConfigKeyInfo

// Config is a global koanf instance used to access library level
// configuration options.
//
// Config is loaded in the following order (later sources override earlier):
// 1. Built-in defaults (in init())
// 2. Auto-discovered passage.yaml (in init())
// 3. Environment variables with PASSAGE__ prefix (in init())
// 4. Additional sources loaded via LoadConfigFile() or LoadConfigDefaults()
//
// Environment variable transformation:
//   - PASSAGE__HTTP_TIMEOUT → httpTimeout
//   - PASSAGE__DISCOVERY__REFRESH_INTERVAL → discovery.refreshInterval
var Config = koanf.New(".")

func init() {
	registerCoreConfigKeys()

	// Look for a passage.yaml file in the current directory or any parent.
	if cfg := config.SearchForConfig(ConfigFile, "."); cfg != "" {
		if err := Config.Load(file.Provider(cfg), yaml.Parser()); err != nil {
			panic("error loading config: " + err.Error())
		}
	}

	// Load environment variables with the prefix PASSAGE__.
	if err := Config.Load(env.Provider("PASSAGE__", ".", config.TransformEnv), nil); err != nil {
		panic("error loading env config: " + err.Error())
	}
}

// RegisterConfigKey registers a known configuration key with metadata.
// Host integrations should call this to document expected config keys.
func RegisterConfigKey(info ConfigKeyInfo) {
	config.RegisterConfigKey(info)
}

// RegisterConfigKeys registers multiple configuration keys at once.
func RegisterConfigKeys(infos ...ConfigKeyInfo) {
	config.RegisterConfigKeys(infos...)
}

// LoadConfigFile loads additional configuration from a YAML file into the
// global Config instance. Call this before constructing a Passage instance.
func LoadConfigFile(path string) {
	if err := Config.Load(file.Provider(path), yaml.Parser()); err != nil {
		panic("error loading config file '" + path + "': " + err.Error())
	}
}

// LoadConfigDefaults loads default configuration values into the global
// Config instance, for application-specific defaults that can be overridden
// by files or env vars.
func LoadConfigDefaults(defaults map[string]interface{}) {
	if err := Config.Load(confmap.Provider(defaults, "."), nil); err != nil {
		panic("error loading config defaults: " + err.Error())
	}
}

// ConfigString returns the string value for the given key.
func ConfigString(key string) string {
	return Config.String(key)
}

// ConfigInt returns the int value for the given key.
func ConfigInt(key string) int {
	return Config.Int(key)
}

// ConfigInt64 returns the int64 value for the given key.
func ConfigInt64(key string) int64 {
	return Config.Int64(key)
}

// ConfigBool returns the bool value for the given key.
func ConfigBool(key string) bool {
	return Config.Bool(key)
}

// ConfigDuration returns the duration value for the given key.
// Duration strings like "5m", "1h", "30s" are parsed automatically.
func ConfigDuration(key string) time.Duration {
	return Config.Duration(key)
}

// ConfigExists checks if the given key exists in the configuration.
func ConfigExists(key string) bool {
	return Config.Exists(key)
}

// registerCoreConfigKeys registers all core configuration keys with their
// defaults. Called from init() before any config loading happens.
func registerCoreConfigKeys() {
	config.RegisterConfigKeys(
		ConfigKeyInfo{
			Key:         "httpTimeout",
			Description: "Timeout applied to the default HTTP client used for protocol requests",
			Type:        "duration",
			Default:     "30s",
		},
		ConfigKeyInfo{
			Key:         "discovery.refreshInterval",
			Description: "How often remote discovery documents are refreshed automatically",
			Type:        "duration",
			Default:     "24h",
		},
		ConfigKeyInfo{
			Key:         "discovery.maxStaleness",
			Description: "How long a cached discovery document may be served after a failed refresh",
			Type:        "duration",
			Default:     "168h",
		},
		ConfigKeyInfo{
			Key:         "discovery.responseSizeLimit",
			Description: "Maximum accepted size in bytes for discovery and JWKS responses",
			Type:        "int64",
			Default:     int64(1 << 20),
		},
		ConfigKeyInfo{
			Key:         "apps.cacheEnabled",
			Description: "Enable the read-through cache in front of the application store",
			Type:        "bool",
			Default:     true,
		},
	)
}
