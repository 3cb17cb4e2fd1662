// Package envcfg loads deployment configuration for sessionkit-based
// services: AWS Secrets Manager first (when configured), then .env files,
// then the process environment.
package envcfg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	sessionkit "github.com/notablehq/sessionkit"
)

// Env is the environment-variable surface of a sessionkit deployment.
type Env struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	JWTAccessSecret  string `env:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string `env:"JWT_REFRESH_SECRET"`
	CSRFSecret       string `env:"CSRF_SECRET"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// TokenStore selects the refresh token backend: redis, postgres, bolt.
	TokenStore  string `env:"TOKEN_STORE" envDefault:"redis"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	BoltPath    string `env:"BOLT_PATH" envDefault:"sessionkit.db"`

	RequireVerifiedEmail bool `env:"REQUIRE_VERIFIED_EMAIL" envDefault:"false"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	MailFrom string `env:"MAIL_FROM"`

	AMQPURL   string `env:"AMQP_URL"`
	AMQPQueue string `env:"AMQP_QUEUE" envDefault:"security_alerts"`
}

// Load resolves the environment in order: Secrets Manager, .env file, process
// env. A missing .env file is fine; containers inject variables directly.
func Load(ctx context.Context, defaultEnvPath string) (*Env, error) {
	if err := loadAWSSecretsIntoEnv(ctx); err != nil {
		slog.Warn("skipping AWS Secrets Manager load", "error", err)
	}

	loadDotEnv(defaultEnvPath)

	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating environment: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether ENVIRONMENT is set to production.
func (e *Env) IsProduction() bool {
	return e.Environment == "production"
}

// SessionConfig maps the environment onto an engine configuration.
func (e *Env) SessionConfig() sessionkit.Config {
	cfg := sessionkit.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(e.JWTAccessSecret)
	cfg.JWT.RefreshSecret = []byte(e.JWTRefreshSecret)
	cfg.CSRF.Secret = []byte(e.CSRFSecret)
	cfg.Account.RequireVerifiedEmail = e.RequireVerifiedEmail
	return cfg
}

func (e *Env) validate() error {
	if e.JWTAccessSecret == "" || e.JWTRefreshSecret == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	if e.CSRFSecret == "" {
		return errors.New("CSRF_SECRET is required")
	}

	switch e.TokenStore {
	case "redis", "bolt":
	case "postgres":
		if e.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when TOKEN_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q (want redis, postgres, or bolt)", e.TokenStore)
	}

	if e.SMTPHost != "" && e.MailFrom == "" {
		return errors.New("MAIL_FROM is required when SMTP_HOST is set")
	}

	return nil
}

func loadDotEnv(defaultEnvPath string) {
	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = defaultEnvPath
	}
	if envFile == "" {
		envFile = ".env"
	}

	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			// Quiet in orchestrated environments where env is injected.
			if os.Getenv("KUBERNETES_SERVICE_HOST") == "" {
				slog.Info("no .env file found, using process environment", "path", envFile)
			}
		}
	}
}

// loadAWSSecretsIntoEnv fetches a JSON secret and projects its keys into the
// process environment. Existing variables win unless overwrite is requested.
func loadAWSSecretsIntoEnv(ctx context.Context) error {
	secretID := os.Getenv("AWS_SECRETS_MANAGER_SECRET_ID")
	if secretID == "" {
		return nil
	}

	region := os.Getenv("AWS_SECRETS_MANAGER_REGION")
	overwrite := os.Getenv("AWS_SECRETS_MANAGER_OVERWRITE") == "true"

	awsCfg, err := loadAWSConfig(ctx, region)
	if err != nil {
		return err
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	output, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	payload := ""
	switch {
	case output.SecretString != nil:
		payload = *output.SecretString
	case len(output.SecretBinary) > 0:
		payload = string(output.SecretBinary)
	default:
		return fmt.Errorf("secret %s has no payload", secretID)
	}

	var kv map[string]any
	if err := json.Unmarshal([]byte(payload), &kv); err != nil {
		return fmt.Errorf("parsing secret %s as JSON: %w", secretID, err)
	}

	for key, val := range kv {
		if !overwrite && os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return fmt.Errorf("setting env %s from secret: %w", key, err)
		}
	}

	return nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region != "" {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx)
}
