// Package config loads service settings from defaults, an optional YAML
// file, RECONCILER_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so log.level is read
// from RECONCILER_LOG_LEVEL.
const EnvPrefix = "RECONCILER"

// OCR engines.
const (
	EngineTesseract = "tesseract"
	EngineGemini    = "gemini"
	EngineNone      = "none"
)

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Templates  TemplatesConfig  `mapstructure:"templates"`
	Store      StoreConfig      `mapstructure:"store"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	HTTP       HTTPConfig       `mapstructure:"http"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type TemplatesConfig struct {
	// Dir holds extra YAML or JSON templates; empty means built-ins only.
	Dir string `mapstructure:"dir"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type OCRConfig struct {
	Engine       string `mapstructure:"engine"`
	TesseractCmd string `mapstructure:"tesseract_cmd"`
	Lang         string `mapstructure:"lang"`
	PSM          int    `mapstructure:"psm"`
	GeminiModel  string `mapstructure:"gemini_model"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
}

type PipelineConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	// Tolerance is a decimal string, see Config.Tolerance.
	Tolerance string `mapstructure:"tolerance"`
	BatchSize int    `mapstructure:"batch_size"`
}

type ClassifierConfig struct {
	ModelPath string  `mapstructure:"model_path"`
	Threshold float64 `mapstructure:"threshold"`
}

type WorkerConfig struct {
	Count      int `mapstructure:"count"`
	MaxRetries int `mapstructure:"max_retries"`
}

type HTTPConfig struct {
	Addr        string `mapstructure:"addr"`
	UploadDir   string `mapstructure:"upload_dir"`
	BodyLimitMB int    `mapstructure:"body_limit_mb"`
}

var defaults = map[string]any{
	"log.level":             "info",
	"log.pretty":            true,
	"templates.dir":         "",
	"store.path":            "reconciler.db",
	"ocr.engine":            EngineTesseract,
	"ocr.tesseract_cmd":     "tesseract",
	"ocr.lang":              "eng",
	"ocr.psm":               6,
	"ocr.gemini_model":      "gemini-2.5-flash",
	"ocr.gemini_api_key":    "",
	"pipeline.chunk_size":   1000,
	"pipeline.tolerance":    "0.01",
	"pipeline.batch_size":   500,
	"classifier.model_path": "",
	"classifier.threshold":  0.6,
	"worker.count":          4,
	"worker.max_retries":    3,
	"http.addr":             ":8080",
	"http.upload_dir":       "uploads",
	"http.body_limit_mb":    20,
}

// flagKeys maps the flags added by RegisterFlags to configuration keys.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-pretty":    "log.pretty",
	"templates-dir": "templates.dir",
	"store":         "store.path",
	"ocr-engine":    "ocr.engine",
	"chunk-size":    "pipeline.chunk_size",
	"tolerance":     "pipeline.tolerance",
	"model":         "classifier.model_path",
}

// RegisterFlags adds the flags that may override configuration keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.Bool("log-pretty", true, "human readable console logs instead of JSON")
	fs.String("templates-dir", "", "directory of additional bank templates")
	fs.String("store", "reconciler.db", "path of the statement database")
	fs.String("ocr-engine", EngineTesseract, "OCR engine: tesseract, gemini or none")
	fs.Int("chunk-size", 1000, "rows extracted per window")
	fs.String("tolerance", "0.01", "largest balance difference treated as equal")
	fs.String("model", "", "trained category model")
}

// Build reads the configuration. cfgFile may be empty; flags may be nil or
// carry any subset of the flags from RegisterFlags.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("ocr.gemini_api_key", EnvPrefix+"_OCR_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", cfgFile, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.OCR.Engine {
	case EngineTesseract, EngineNone:
	case EngineGemini:
		if c.OCR.GeminiAPIKey == "" {
			return fmt.Errorf("ocr.engine gemini needs ocr.gemini_api_key")
		}
	default:
		return fmt.Errorf("unknown ocr.engine %q", c.OCR.Engine)
	}
	if _, err := c.Tolerance(); err != nil {
		return err
	}
	if c.Pipeline.ChunkSize < 1 {
		return fmt.Errorf("pipeline.chunk_size must be positive, got %d", c.Pipeline.ChunkSize)
	}
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return fmt.Errorf("classifier.threshold must be between 0 and 1, got %v", c.Classifier.Threshold)
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be positive, got %d", c.Worker.Count)
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("worker.max_retries must not be negative, got %d", c.Worker.MaxRetries)
	}
	return nil
}

// Tolerance parses pipeline.tolerance.
func (c *Config) Tolerance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Pipeline.Tolerance))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid pipeline.tolerance %q: %w", c.Pipeline.Tolerance, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("pipeline.tolerance must not be negative, got %s", d)
	}
	return d, nil
}
