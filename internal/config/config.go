package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"grantlens/pkg/contracts/domain"
)

// Config is the complete pipeline configuration. It is loaded once at startup,
// validated before any computation begins, and passed to every stage as an
// immutable value.
type Config struct {
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Quality QualityConfig `yaml:"quality" envconfig:"QUALITY"`
	Anomaly AnomalyConfig `yaml:"anomaly" envconfig:"ANOMALY"`
	Impact  ImpactConfig  `yaml:"impact" envconfig:"IMPACT"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json" validate:"oneof=json text"`
}

// PathsConfig contains file system paths for inputs and published outputs.
type PathsConfig struct {
	DataDir       string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data" validate:"required"`
	OutputDir     string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"outputs" validate:"required"`
	DatabaseFile  string `yaml:"database_file" envconfig:"DATABASE_FILE" default:"outputs/nonprofit_grants.db" validate:"required"`
	NonprofitsCSV string `yaml:"nonprofits_csv" envconfig:"NONPROFITS_CSV" default:"non-profits.csv" validate:"required"`
	GrantsCSV     string `yaml:"grants_csv" envconfig:"GRANTS_CSV" default:"grants.csv" validate:"required"`
}

// ServerConfig contains HTTP server configuration for the results API.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"50" validate:"gt=0"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"25" validate:"gt=0"`
}

// QualityConfig controls the quality scorer.
type QualityConfig struct {
	// FieldWeights assigns relative weight to each recognized nonprofit field
	// in the completeness sub-score. Defaults weight financial fields higher
	// than descriptive ones.
	FieldWeights map[string]float64 `yaml:"field_weights" ignored:"true"`
	// CompletenessWeight and ConsistencyWeight blend the two sub-scores.
	CompletenessWeight float64 `yaml:"completeness_weight" envconfig:"COMPLETENESS_WEIGHT" default:"0.6" validate:"gt=0"`
	ConsistencyWeight  float64 `yaml:"consistency_weight" envconfig:"CONSISTENCY_WEIGHT" default:"0.4" validate:"gt=0"`
	// ExpenseTolerance is the fraction of revenue by which expenses may exceed
	// revenue before the record is considered inconsistent.
	ExpenseTolerance float64 `yaml:"expense_tolerance" envconfig:"EXPENSE_TOLERANCE" default:"0.10" validate:"min=0"`
}

// AnomalyConfig controls cohort-based outlier detection.
type AnomalyConfig struct {
	// MinCohortSize suppresses flagging for cohorts with fewer members.
	MinCohortSize int `yaml:"min_cohort_size" envconfig:"MIN_COHORT_SIZE" default:"5" validate:"min=2"`
	// ModerateZ and SevereZ are the |z-score| thresholds for the two tiers.
	// The severe boundary is inclusive.
	ModerateZ float64 `yaml:"moderate_z" envconfig:"MODERATE_Z" default:"2.0" validate:"gt=0"`
	SevereZ   float64 `yaml:"severe_z" envconfig:"SEVERE_Z" default:"3.0" validate:"gt=0"`
}

// ImpactConfig controls the final impact score blend.
type ImpactConfig struct {
	// ReferenceFunding scales total funding before squashing, so the
	// efficiency component saturates rather than letting large grants dominate.
	ReferenceFunding float64 `yaml:"reference_funding" envconfig:"REFERENCE_FUNDING" default:"1000000" validate:"gt=0"`
	// ModeratePenalty and SeverePenalty are subtracted per anomaly flag,
	// in final-score points.
	ModeratePenalty float64 `yaml:"moderate_penalty" envconfig:"MODERATE_PENALTY" default:"5" validate:"min=0"`
	SeverePenalty   float64 `yaml:"severe_penalty" envconfig:"SEVERE_PENALTY" default:"15" validate:"min=0"`
	// Scale maps the quality-weighted efficiency base into score points.
	Scale float64 `yaml:"scale" envconfig:"SCALE" default:"100" validate:"gt=0"`
	// ClampMin and ClampMax bound the published score for presentation stability.
	ClampMin float64 `yaml:"clamp_min" envconfig:"CLAMP_MIN" default:"0"`
	ClampMax float64 `yaml:"clamp_max" envconfig:"CLAMP_MAX" default:"100"`
}

// DefaultFieldWeights returns the built-in field-weight table. Financial
// fields carry twice the weight of descriptive fields.
func DefaultFieldWeights() map[string]float64 {
	return map[string]float64{
		domain.FieldName:           1.0,
		domain.FieldClassification: 1.0,
		domain.FieldFoundingYear:   1.0,
		domain.FieldRevenue:        2.0,
		domain.FieldExpenses:       2.0,
		domain.FieldAssets:         2.0,
		domain.FieldRegion:         1.0,
	}
}

// Load loads configuration from defaults, an optional YAML file, and
// environment variables (env takes precedence over file). The returned
// config has already passed full validation; any validation failure here
// is fatal to the caller by design of the error taxonomy.
func Load(configFile string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process("GRANTLENS", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fileCfg, err := loadFromFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("load config from file: %w", err)
			}
			cfg = mergeConfigs(*fileCfg, cfg)
		}
	}

	if len(cfg.Quality.FieldWeights) == 0 {
		cfg.Quality.FieldWeights = DefaultFieldWeights()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file, with envconfig defaults
// applied first so absent keys keep their defaults.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence).
// envconfig fills every field with its default, so only fields the
// environment actually overrode differ from the defaults.
func mergeConfigs(fileConfig, envConfig Config) Config {
	defaults := Config{}
	_ = envconfig.Process("", &defaults)

	merged := envConfig
	if merged.Logging == defaults.Logging {
		merged.Logging = fileConfig.Logging
	}
	if merged.Paths == defaults.Paths {
		merged.Paths = fileConfig.Paths
	}
	if merged.Server == defaults.Server {
		merged.Server = fileConfig.Server
	}
	if merged.Quality.CompletenessWeight == defaults.Quality.CompletenessWeight &&
		merged.Quality.ConsistencyWeight == defaults.Quality.ConsistencyWeight &&
		merged.Quality.ExpenseTolerance == defaults.Quality.ExpenseTolerance {
		merged.Quality = fileConfig.Quality
	}
	if merged.Anomaly == defaults.Anomaly {
		merged.Anomaly = fileConfig.Anomaly
	}
	if merged.Impact == defaults.Impact {
		merged.Impact = fileConfig.Impact
	}
	if len(merged.Quality.FieldWeights) == 0 {
		merged.Quality.FieldWeights = fileConfig.Quality.FieldWeights
	}

	return merged
}

// Validate checks structural constraints via validator tags plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Anomaly.SevereZ < c.Anomaly.ModerateZ {
		return fmt.Errorf("severe z-threshold %.2f must be >= moderate threshold %.2f",
			c.Anomaly.SevereZ, c.Anomaly.ModerateZ)
	}

	if c.Impact.ClampMax <= c.Impact.ClampMin {
		return fmt.Errorf("clamp range [%.2f, %.2f] is empty",
			c.Impact.ClampMin, c.Impact.ClampMax)
	}

	recognized := make(map[string]bool)
	for _, f := range domain.NonprofitFields() {
		recognized[f] = true
	}
	var totalWeight float64
	for field, w := range c.Quality.FieldWeights {
		if !recognized[field] {
			return fmt.Errorf("field weight refers to unknown field %q", field)
		}
		if w < 0 {
			return fmt.Errorf("field weight for %q is negative: %.2f", field, w)
		}
		totalWeight += w
	}
	if totalWeight <= 0 {
		return fmt.Errorf("field weights must sum to a positive value")
	}

	return nil
}

// Fingerprint returns a stable hash of the scoring-relevant configuration,
// recorded in the run manifest so published outputs are traceable to the
// parameters that produced them.
func (c *Config) Fingerprint() string {
	scoring := struct {
		Quality QualityConfig `yaml:"quality"`
		Anomaly AnomalyConfig `yaml:"anomaly"`
		Impact  ImpactConfig  `yaml:"impact"`
	}{c.Quality, c.Anomaly, c.Impact}

	data, err := yaml.Marshal(scoring)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
