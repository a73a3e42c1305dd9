package session

import (
	"errors"
	"fmt"
	"time"
)

// Config controls interview pacing and failure handling.
type Config struct {
	MinQuestions int `mapstructure:"min-questions"`
	MaxQuestions int `mapstructure:"max-questions"`
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int           `mapstructure:"max-retries"`
	RetryDelay time.Duration `mapstructure:"retry-delay"`
	// MaxRetryDelay caps a server-advised quota delay; longer delays are not waited out.
	MaxRetryDelay     time.Duration `mapstructure:"max-retry-delay"`
	InactivityTimeout time.Duration `mapstructure:"inactivity-timeout"`
	// Retention is how long a finished session stays readable. Zero keeps it until Close.
	Retention         time.Duration `mapstructure:"retention"`
	OpenWithQuestion  bool          `mapstructure:"open-with-question"`
	ScoreDisqualified bool          `mapstructure:"score-disqualified"`
	MaxStrikes        int           `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		MinQuestions:      4,
		MaxQuestions:      6,
		MaxRetries:        2,
		RetryDelay:        time.Second,
		MaxRetryDelay:     30 * time.Second,
		InactivityTimeout: 5 * time.Minute,
		Retention:         10 * time.Minute,
		MaxStrikes:        3,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.MinQuestions < 1 {
		errs = append(errs, fmt.Errorf("min-questions must be at least 1, got %d", c.MinQuestions))
	}
	if c.MaxQuestions < c.MinQuestions {
		errs = append(errs, fmt.Errorf("max-questions (%d) must not be less than min-questions (%d)", c.MaxQuestions, c.MinQuestions))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max-retries must not be negative, got %d", c.MaxRetries))
	}
	if c.RetryDelay < 0 || c.MaxRetryDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if c.InactivityTimeout < 0 || c.Retention < 0 {
		errs = append(errs, errors.New("inactivity-timeout and retention must not be negative"))
	}
	if c.MaxStrikes < 1 {
		errs = append(errs, fmt.Errorf("max-strikes must be at least 1, got %d", c.MaxStrikes))
	}
	return errors.Join(errs...)
}
