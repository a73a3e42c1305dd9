package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/screener/internal/metrics"
	"github.com/spigell/screener/internal/server"
	"github.com/spigell/screener/internal/session"
	"github.com/spigell/screener/internal/store"
)

const (
	app = "screener"
)

type Config struct {
	Server     server.Config     `mapstructure:"server"`
	Interview  session.Config    `mapstructure:"interview"`
	Proctoring *ProctoringConfig `mapstructure:"proctoring"`
	Store      store.Config      `mapstructure:"store"`
	Metrics    metrics.Config    `mapstructure:"metrics"`
	AI         *AIConfig         `mapstructure:"ai"`
}

type ProctoringConfig struct {
	Threshold int `mapstructure:"threshold"`
}

type AIConfig struct {
	Provider string         `mapstructure:"provider"`
	Persona  *PersonaConfig `mapstructure:"persona"`
	Gemini   *GeminiConfig  `mapstructure:"gemini"`
}

type PersonaConfig struct {
	Interviewer string `mapstructure:"interviewer"`
	Company     string `mapstructure:"company"`
	Role        string `mapstructure:"role"`
}

type GeminiConfig struct {
	APIKey       string  `mapstructure:"api-key"`
	APIKeyFile   string  `mapstructure:"api-key-file"`
	Model        string  `mapstructure:"model"`
	Temperature  float32 `mapstructure:"temperature"`
	MaxLogLength int     `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "screener runs voice-driven technical screening interviews against a candidate resume",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("SCREENER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	defaults := session.DefaultConfig()

	v.SetDefault("server.listen", ":8080")

	v.SetDefault("interview.min-questions", defaults.MinQuestions)
	v.SetDefault("interview.max-questions", defaults.MaxQuestions)
	v.SetDefault("interview.max-retries", defaults.MaxRetries)
	v.SetDefault("interview.retry-delay", defaults.RetryDelay)
	v.SetDefault("interview.max-retry-delay", defaults.MaxRetryDelay)
	v.SetDefault("interview.inactivity-timeout", defaults.InactivityTimeout)
	v.SetDefault("interview.retention", defaults.Retention)
	v.SetDefault("interview.open-with-question", defaults.OpenWithQuestion)
	v.SetDefault("interview.score-disqualified", defaults.ScoreDisqualified)

	v.SetDefault("proctoring.threshold", defaults.MaxStrikes)

	v.SetDefault("store.driver", store.DriverMemory)
	v.SetDefault("store.path", "")

	v.SetDefault("metrics.otlp-endpoint", "")
	v.SetDefault("metrics.insecure", false)

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.temperature", 0.7)
	v.SetDefault("ai.gemini.max-log-length", 200)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	err := viper.ReadInConfig()
	if err == nil {
		return
	}

	// Defaults and environment are enough without a config file, unless one was named explicitly.
	var notFound viper.ConfigFileNotFoundError
	if cfgFile == "" && errors.As(err, &notFound) {
		return
	}

	// We can't proceed if the config file parsed with error.
	log.Fatal(err)
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if config.Proctoring != nil {
		config.Interview.MaxStrikes = config.Proctoring.Threshold
	}
	if err := config.Interview.Validate(); err != nil {
		return config, fmt.Errorf("interview section: %w", err)
	}

	return config, nil
}
