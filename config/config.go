// Package config loads service settings from defaults, an optional YAML file
// and the environment, in that order of precedence (last wins).
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	LLM     LLMConfig     `koanf:"llm"`
	Code    CodeConfig    `koanf:"code"`
	Elastic ElasticConfig `koanf:"elastic"`
	Redis   RedisConfig   `koanf:"redis"`
	MySQL   MySQLConfig   `koanf:"mysql"`
	CSV     CSVConfig     `koanf:"csv"`
	API     APIConfig     `koanf:"api"`
	Etcd    EtcdConfig    `koanf:"etcd"`
	Log     LogConfig     `koanf:"log"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

type LLMConfig struct {
	Provider    string            `koanf:"provider"`
	Model       string            `koanf:"model"`
	BaseURL     string            `koanf:"base_url"`
	Temperature float64           `koanf:"temperature"`
	Timeout     time.Duration     `koanf:"timeout"`
	MaxAttempts int               `koanf:"max_attempts"`
	RetryDelay  time.Duration     `koanf:"retry_delay"`
	Keys        map[string]string `koanf:"keys"`
}

// APIKey returns the credential of the selected provider.
func (c LLMConfig) APIKey() string {
	return c.Keys[strings.ToLower(c.Provider)]
}

type CodeConfig struct {
	// Source is "elastic" or "mysql".
	Source   string        `koanf:"source"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

type ElasticConfig struct {
	Addresses   []string `koanf:"addresses"`
	Username    string   `koanf:"username"`
	Password    string   `koanf:"password"`
	CodeIndex   string   `koanf:"code_index"`
	ResultIndex string   `koanf:"result_index"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type MySQLConfig struct {
	DSN   string `koanf:"dsn"`
	Table string `koanf:"table"`
}

type CSVConfig struct {
	Path        string `koanf:"path"`
	PreviewRows int    `koanf:"preview_rows"`
}

type APIConfig struct {
	Key string `koanf:"key"`
}

type EtcdConfig struct {
	Endpoints   []string `koanf:"endpoints"`
	ServiceName string   `koanf:"service_name"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

var defaults = map[string]interface{}{
	"http.addr":            ":8080",
	"llm.provider":         "openai",
	"llm.temperature":      0.0,
	"llm.timeout":          "60s",
	"llm.max_attempts":     3,
	"llm.retry_delay":      "2s",
	"code.source":          "elastic",
	"code.cache_ttl":       "10m",
	"elastic.code_index":   "code_records",
	"elastic.result_index": "lineage_results",
	"mysql.table":          "code_records",
	"csv.preview_rows":     200,
	"log.level":            "info",
	"log.format":           "text",
}

// envKeys maps environment variables onto config keys. Unlisted variables
// are ignored.
var envKeys = map[string]string{
	"HTTP_ADDR":         "http.addr",
	"LLM_PROVIDER":      "llm.provider",
	"LLM_MODEL":         "llm.model",
	"LLM_BASE_URL":      "llm.base_url",
	"LLM_TEMPERATURE":   "llm.temperature",
	"LLM_TIMEOUT":       "llm.timeout",
	"LLM_MAX_ATTEMPTS":  "llm.max_attempts",
	"LLM_RETRY_DELAY":   "llm.retry_delay",
	"OPENAI_API_KEY":    "llm.keys.openai",
	"DEEPSEEK_API_KEY":  "llm.keys.deepseek",
	"GEMINI_API_KEY":    "llm.keys.gemini",
	"ARK_API_KEY":       "llm.keys.ark",
	"CODE_SOURCE":       "code.source",
	"CODE_CACHE_TTL":    "code.cache_ttl",
	"ELASTICSEARCH_URL": "elastic.addresses",
	"ES_USERNAME":       "elastic.username",
	"ES_PASSWORD":       "elastic.password",
	"ES_CODE_INDEX":     "elastic.code_index",
	"ES_RESULT_INDEX":   "elastic.result_index",
	"REDIS_URL":         "redis.addr",
	"REDIS_PASSWORD":    "redis.password",
	"REDIS_DB":          "redis.db",
	"MYSQL_URL":         "mysql.dsn",
	"MYSQL_CODE_TABLE":  "mysql.table",
	"CSV_PATH":          "csv.path",
	"CSV_PREVIEW_ROWS":  "csv.preview_rows",
	"API_KEY":           "api.key",
	"ETCD_ENDPOINTS":    "etcd.endpoints",
	"ETCD_SERVICE_NAME": "etcd.service_name",
	"LOG_LEVEL":         "log.level",
	"LOG_FORMAT":        "log.format",
}

var listKeys = map[string]bool{
	"elastic.addresses": true,
	"etcd.endpoints":    true,
}

// Load reads the configuration. path may be empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load %s", path)
		}
	}
	if err := k.Load(env.ProviderWithValue("", ".", fromEnv), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.Code.Source = strings.ToLower(strings.TrimSpace(cfg.Code.Source))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func fromEnv(name, value string) (string, interface{}) {
	key, ok := envKeys[name]
	if !ok || strings.TrimSpace(value) == "" {
		return "", nil
	}
	if listKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "deepseek", "gemini", "ark":
	default:
		return errors.Errorf("llm.provider %q is not one of openai, deepseek, gemini, ark", c.LLM.Provider)
	}
	switch c.Code.Source {
	case "elastic", "mysql":
	default:
		return errors.Errorf("code.source %q is not one of elastic, mysql", c.Code.Source)
	}
	if c.Code.Source == "mysql" && c.MySQL.DSN == "" {
		return errors.New("mysql.dsn is required when code.source is mysql")
	}
	if c.LLM.MaxAttempts < 1 {
		return errors.New("llm.max_attempts must be at least 1")
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("llm.timeout must be positive")
	}
	if c.LLM.RetryDelay < 0 {
		return errors.New("llm.retry_delay must not be negative")
	}
	return nil
}
