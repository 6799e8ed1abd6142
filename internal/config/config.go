package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load
const EnvPrefix = "FINSIGHT"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	Prepare    PrepareConfig    `yaml:"prepare" envconfig:"PREPARE"`
	Preprocess PreprocessConfig `yaml:"preprocess" envconfig:"PREPROCESS"`
	Augment    AugmentConfig    `yaml:"augment" envconfig:"AUGMENT"`
	NER        NERConfig        `yaml:"ner" envconfig:"NER"`
	Features   FeaturesConfig   `yaml:"features" envconfig:"FEATURES"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
	Collector  CollectorConfig  `yaml:"collector" envconfig:"COLLECTOR"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port             int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT" default:"2h"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" default:"33554432"`
	RateLimitRPS     float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst   int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"40"`
	JobWorkers       int           `yaml:"job_workers" envconfig:"JOB_WORKERS" default:"2"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/finsight.log"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir     string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	LogsDir     string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
	CatalogFile string `yaml:"catalog_file" envconfig:"CATALOG_FILE" default:"DATA_SOURCES.md"`
	// AnnotationFile is the BIO annotation export consumed by the NER stage
	AnnotationFile string `yaml:"annotation_file" envconfig:"ANNOTATION_FILE" default:"data/processed/bio_annotation_ready.jsonl"`
}

// PrepareConfig controls the merge stage
type PrepareConfig struct {
	Dedup      bool `yaml:"dedup" envconfig:"DEDUP" default:"true"`
	KeepSource bool `yaml:"keep_source" envconfig:"KEEP_SOURCE" default:"false"`
	Workers    int  `yaml:"workers" envconfig:"WORKERS" default:"4"`
}

// PreprocessConfig controls the cleaning stage
type PreprocessConfig struct {
	MinChars       int     `yaml:"min_chars" envconfig:"MIN_CHARS" default:"20"`
	MinLetterRatio float64 `yaml:"min_letter_ratio" envconfig:"MIN_LETTER_RATIO" default:"0.5"`
}

// AugmentConfig controls the augmentation stage
type AugmentConfig struct {
	Ratio         float64 `yaml:"ratio" envconfig:"RATIO" default:"0.05"`
	ReplaceProb   float64 `yaml:"replace_prob" envconfig:"REPLACE_PROB" default:"0.10"`
	DeleteProb    float64 `yaml:"delete_prob" envconfig:"DELETE_PROB" default:"0.03"`
	Seed          int64   `yaml:"seed" envconfig:"SEED" default:"42"`
	ThesaurusFile string  `yaml:"thesaurus_file" envconfig:"THESAURUS_FILE"`
}

// NERConfig controls the NER split stage
type NERConfig struct {
	EntityLabels       []string `yaml:"entity_labels" envconfig:"ENTITY_LABELS" default:"ORG,DATE,FIN_VALUE,REVENUE,PROFIT,FIN_TERM,EVENT"`
	TestSize           float64  `yaml:"test_size" envconfig:"TEST_SIZE" default:"0.2"`
	ValFractionOfTemp  float64  `yaml:"val_fraction_of_temp" envconfig:"VAL_FRACTION_OF_TEMP" default:"0.5"`
	Seed               int64    `yaml:"seed" envconfig:"SEED" default:"42"`
	MinEntityRecordPct float64  `yaml:"min_entity_record_pct" envconfig:"MIN_ENTITY_RECORD_PCT" default:"0.01"`
}

// FeaturesConfig controls the tokenization features stage
type FeaturesConfig struct {
	TopTokens int  `yaml:"top_tokens" envconfig:"TOP_TOKENS" default:"1000"`
	Lowercase bool `yaml:"lowercase" envconfig:"LOWERCASE" default:"true"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName   string  `yaml:"service_name" envconfig:"SERVICE_NAME" default:"finsight"`
	Environment   string  `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	EnableMetrics bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS" default:"true"`
	EnableTracing bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING" default:"false"`
	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"stdout"`
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1.0"`
}

// CollectorConfig controls the web source collector
type CollectorConfig struct {
	Headless    bool          `yaml:"headless" envconfig:"HEADLESS" default:"true"`
	PageTimeout time.Duration `yaml:"page_timeout" envconfig:"PAGE_TIMEOUT" default:"45s"`
	WaitAfter   time.Duration `yaml:"wait_after" envconfig:"WAIT_AFTER" default:"2s"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom loads configuration using the given YAML file (may be empty) and
// environment variables. Environment values override file values.
func LoadFrom(configFile string) (*Config, error) {
	var cfg Config

	// Load from environment variables first, which also applies defaults
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fileConfig, err := loadFromFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			cfg = mergeConfigs(*fileConfig, cfg, explicitEnv())
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// explicitEnv returns the set of FINSIGHT_* variables present in the environment
func explicitEnv() map[string]bool {
	set := make(map[string]bool)
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, EnvPrefix+"_") {
			set[key] = true
		}
	}
	return set
}

// mergeConfigs overlays file values onto env/default values. A field keeps its
// env value only when the matching variable was set explicitly; otherwise a
// non-zero file value wins over the envconfig default.
func mergeConfigs(fileConfig, envConfig Config, explicit map[string]bool) Config {
	mergeStruct(reflect.ValueOf(&envConfig).Elem(), reflect.ValueOf(fileConfig), EnvPrefix, explicit)
	return envConfig
}

func mergeStruct(dst, src reflect.Value, prefix string, explicit map[string]bool) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := prefix + "_" + field.Tag.Get("envconfig")
		df, sf := dst.Field(i), src.Field(i)

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			mergeStruct(df, sf, key, explicit)
			continue
		}
		if explicit[key] || sf.IsZero() {
			continue
		}
		df.Set(sf)
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Prepare.Workers <= 0 {
		c.Prepare.Workers = 1
	}
	if c.Server.JobWorkers <= 0 {
		c.Server.JobWorkers = 1
	}
	for name, p := range map[string]float64{
		"augment.ratio":               c.Augment.Ratio,
		"augment.replace_prob":        c.Augment.ReplaceProb,
		"augment.delete_prob":         c.Augment.DeleteProb,
		"preprocess.min_letter_ratio": c.Preprocess.MinLetterRatio,
		"ner.min_entity_record_pct":   c.NER.MinEntityRecordPct,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, p)
		}
	}
	if c.NER.TestSize <= 0 || c.NER.TestSize >= 1 {
		return fmt.Errorf("ner.test_size must be within (0, 1), got %v", c.NER.TestSize)
	}
	if c.NER.ValFractionOfTemp <= 0 || c.NER.ValFractionOfTemp >= 1 {
		return fmt.Errorf("ner.val_fraction_of_temp must be within (0, 1), got %v", c.NER.ValFractionOfTemp)
	}
	if len(c.NER.EntityLabels) == 0 {
		return fmt.Errorf("at least one NER entity label must be configured")
	}
	if c.Features.TopTokens < 0 {
		return fmt.Errorf("features.top_tokens must not be negative")
	}

	switch strings.ToLower(c.Logging.Output) {
	case "console", "stderr", "file", "both":
	default:
		c.Logging.Output = "console"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/finsight.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      60 * time.Second,
			ShutdownTimeout:  30 * time.Second,
			OperationTimeout: 2 * time.Hour,
			MaxUploadBytes:   32 << 20,
			RateLimitRPS:     20,
			RateLimitBurst:   40,
			JobWorkers:       2,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/finsight.log",
		},
		Paths: PathsConfig{
			DataDir:        "data",
			LogsDir:        "logs",
			CatalogFile:    "DATA_SOURCES.md",
			AnnotationFile: "data/processed/bio_annotation_ready.jsonl",
		},
		Prepare: PrepareConfig{
			Dedup:   true,
			Workers: 4,
		},
		Preprocess: PreprocessConfig{
			MinChars:       20,
			MinLetterRatio: 0.5,
		},
		Augment: AugmentConfig{
			Ratio:       0.05,
			ReplaceProb: 0.10,
			DeleteProb:  0.03,
			Seed:        42,
		},
		NER: NERConfig{
			EntityLabels:       []string{"ORG", "DATE", "FIN_VALUE", "REVENUE", "PROFIT", "FIN_TERM", "EVENT"},
			TestSize:           0.2,
			ValFractionOfTemp:  0.5,
			Seed:               42,
			MinEntityRecordPct: 0.01,
		},
		Features: FeaturesConfig{
			TopTokens: 1000,
			Lowercase: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "finsight",
			Environment:   "development",
			EnableMetrics: true,
			TraceExporter: "stdout",
			SampleRatio:   1.0,
		},
		Collector: CollectorConfig{
			Headless:    true,
			PageTimeout: 45 * time.Second,
			WaitAfter:   2 * time.Second,
		},
	}
}
