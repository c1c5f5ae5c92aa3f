package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/hred-go/hred"
	"github.com/ZanzyTHEbar/hred-go/hred/align"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file, environment variables or bound flags.
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Training  TrainingConfig  `mapstructure:"training"`
	Registry  RegistryConfig  `mapstructure:"registry"`
}

// EmbeddingConfig stores the embedding-matrix builder settings.
type EmbeddingConfig struct {
	EmbDim                   int      `mapstructure:"embDim"`
	StdDev                   float64  `mapstructure:"stdDev"`
	ApplySpellingCorrections bool     `mapstructure:"applySpellingCorrections"`
	SpellingDictionary       string   `mapstructure:"spellingDictionary"`
	MaxSuggestions           int      `mapstructure:"maxSuggestions"`
	Seed                     int64    `mapstructure:"seed"`
	Workers                  int      `mapstructure:"workers"`
	OutputSuffix             string   `mapstructure:"outputSuffix"`
	Markers                  []string `mapstructure:"markers"`
}

// TrainingConfig is the training prototype state.
type TrainingConfig struct {
	Prefix                      string  `mapstructure:"prefix" json:"prefix"`
	SaveDir                     string  `mapstructure:"saveDir" json:"saveDir"`
	Seed                        int64   `mapstructure:"seed" json:"seed"`
	Patience                    int     `mapstructure:"patience" json:"patience"`
	LoopIters                   int     `mapstructure:"loopIters" json:"loopIters"`
	TimeStopMinutes             float64 `mapstructure:"timeStopMinutes" json:"timeStopMinutes"`
	TrainFreq                   int     `mapstructure:"trainFreq" json:"trainFreq"`
	ValidFreq                   int     `mapstructure:"validFreq" json:"validFreq"`
	SampleFreq                  int     `mapstructure:"sampleFreq" json:"sampleFreq"`
	CostThreshold               float64 `mapstructure:"costThreshold" json:"costThreshold"`
	FixPretrainedWordEmbeddings bool    `mapstructure:"fixPretrainedWordEmbeddings" json:"fixPretrainedWordEmbeddings"`
}

// RegistryConfig stores the checkpoint registry connection details.
// An empty DSN disables the registry.
type RegistryConfig struct {
	DSN string `mapstructure:"dsn"`
}

var (
	ErrInvalidEmbDim = errors.New("embedding.embDim must be positive")
	ErrInvalidStdDev = errors.New("embedding.stdDev must be positive")
)

var AppConfig Config

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"emb-dim":                    "embedding.embDim",
	"std-dev":                    "embedding.stdDev",
	"apply-spelling-corrections": "embedding.applySpellingCorrections",
	"spelling-dictionary":        "embedding.spellingDictionary",
	"seed":                       "embedding.seed",
	"workers":                    "embedding.workers",
	"prefix":                     "training.prefix",
	"save-dir":                   "training.saveDir",
	"registry-dsn":               "registry.dsn",
}

// LoadConfig reads configuration from file, environment variables and the
// given flag set. flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("embedding.embDim", internal.DefaultEmbeddingDim)
	v.SetDefault("embedding.stdDev", internal.DefaultEmbeddingStdDev)
	v.SetDefault("embedding.applySpellingCorrections", false)
	v.SetDefault("embedding.spellingDictionary", "")
	v.SetDefault("embedding.maxSuggestions", 10)
	v.SetDefault("embedding.seed", internal.DefaultEmbeddingSeed)
	v.SetDefault("embedding.workers", 0)
	v.SetDefault("embedding.outputSuffix", internal.DefaultOutputSuffix)
	v.SetDefault("embedding.markers", align.DefaultMarkers)

	v.SetDefault("training.prefix", "model_")
	v.SetDefault("training.saveDir", internal.DefaultSaveDir)
	v.SetDefault("training.seed", 1234)
	v.SetDefault("training.patience", 20)
	v.SetDefault("training.loopIters", 3000000)
	v.SetDefault("training.timeStopMinutes", 24*60*31)
	v.SetDefault("training.trainFreq", 10)
	v.SetDefault("training.validFreq", 5000)
	v.SetDefault("training.sampleFreq", 200)
	v.SetDefault("training.costThreshold", 1.0003)
	v.SetDefault("training.fixPretrainedWordEmbeddings", false)

	v.SetDefault("registry.dsn", internal.DefaultRegistryDSN)

	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // embedding.embDim becomes EMBEDDING_EMBDIM

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &cfg, nil
}

// Validate checks the values the builder cannot run without.
func (c *Config) Validate() error {
	if c.Embedding.EmbDim <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEmbDim, c.Embedding.EmbDim)
	}
	if c.Embedding.StdDev <= 0 {
		return fmt.Errorf("%w: %g", ErrInvalidStdDev, c.Embedding.StdDev)
	}
	return nil
}
