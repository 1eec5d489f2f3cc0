package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const minJwtSecretLength = 32

type Config struct {
	LogLevel             string        `split_words:"true" default:"info"`
	BoltDB               *BoltDB       `split_words:"true"`
	HttpServer           *HttpServer   `split_words:"true"`
	DebugServer          *DebugServer  `split_words:"true"`
	Admin                *Admin        `split_words:"true"`
	RateLimit            *RateLimit    `split_words:"true"`
	WireGuard            *WireGuard    `envconfig:"WIREGUARD"`
	CorsAllowedOrigins   []string      `split_words:"true" default:"*"`
	CorsAllowCredentials bool          `split_words:"true" default:"true"`
	JwtSecret            string        `required:"true" split_words:"true"`
	JwtIssuer            string        `split_words:"true" default:"wg-gateway"`
	JwtAudience          string        `split_words:"true" default:"wg-gateway-api"`
	JwtDuration          time.Duration `split_words:"true" default:"15m"`
	RefreshTokenDuration time.Duration `split_words:"true" default:"168h"`
}

func Load(prefix string) (*Config, error) {
	prefix = strings.ToUpper(prefix)
	prefix = strings.ReplaceAll(prefix, "-", "_")
	prefix = strings.ReplaceAll(prefix, " ", "_")
	var config Config
	if err := envconfig.Process(prefix, &config); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	var result error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err))
	}
	if len(c.JwtSecret) < minJwtSecretLength {
		result = multierror.Append(result, fmt.Errorf("jwt secret must be at least %d characters", minJwtSecretLength))
	}
	if c.JwtDuration <= 0 {
		result = multierror.Append(result, errors.New("jwt duration must be positive"))
	}
	if c.RefreshTokenDuration <= 0 {
		result = multierror.Append(result, errors.New("refresh token duration must be positive"))
	}
	if c.WireGuard != nil {
		if err := c.WireGuard.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
