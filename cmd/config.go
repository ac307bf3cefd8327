package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"meeting-registration/api"
	"meeting-registration/meeting"
)

type StorageKind string

const (
	StorageBadger StorageKind = "badger"
	StorageDynamo StorageKind = "dynamo"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"LOCAL"`
	Host        string `env:"HOST" envDefault:"0.0.0.0"`
	Port        string `env:"PORT" envDefault:"8080"`

	Storage     StorageKind `env:"STORAGE" envDefault:"badger"`
	BadgerDir   string      `env:"BADGER_DIR"`
	DynamoTable string      `env:"DYNAMO_TABLE" envDefault:"MeetingRegistration"`

	Meeting MeetingConfig `envPrefix:"MEETING_"`

	ConfirmationDelay         time.Duration `env:"CONFIRMATION_DELAY" envDefault:"5s"`
	ConfirmationWorkers       int           `env:"CONFIRMATION_WORKERS" envDefault:"4"`
	ConfirmationMaxAttempts   int           `env:"CONFIRMATION_MAX_ATTEMPTS" envDefault:"5"`
	ConfirmationRetryInterval time.Duration `env:"CONFIRMATION_RETRY_INTERVAL" envDefault:"1s"`

	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	EmailFrom string `env:"EMAIL_FROM" envDefault:"registrations@example.org"`

	AdminAudience         string   `env:"ADMIN_AUDIENCE"`
	AdminAudienceSSMParam string   `env:"ADMIN_AUDIENCE_SSM_PARAM"`
	AdminDomain           string   `env:"ADMIN_DOMAIN"`
	AllowedOrigins        []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	OtelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
	OtelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

type MeetingConfig struct {
	Title       string      `env:"TITLE" envDefault:"Annual Meeting"`
	Description string      `env:"DESCRIPTION"`
	Date        MeetingTime `env:"DATE"`
	Deadline    MeetingTime `env:"DEADLINE"`
	Amount      float64     `env:"AMOUNT"`
	Currency    string      `env:"CURRENCY" envDefault:"KES"`
}

const dateOnly = "2006-01-02"

// MeetingTime accepts either an RFC3339 timestamp or a bare 2006-01-02 date.
// A bare date is midnight UTC at the start of that day, so a deadline of
// 2025-10-30 stops accepting registrations once 30 October begins.
type MeetingTime struct {
	time.Time
}

func (t *MeetingTime) UnmarshalText(text []byte) error {
	s := string(text)

	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed
		return nil
	}

	parsed, err := time.Parse(dateOnly, s)
	if err != nil {
		return fmt.Errorf("%q is neither RFC3339 nor %s", s, dateOnly)
	}
	t.Time = parsed
	return nil
}

// Window builds the static meeting window. A zero amount leaves the meeting unconfigured.
func (m MeetingConfig) Window() meeting.Window {
	w := meeting.Window{
		Title:       m.Title,
		Description: m.Description,
		EventDate:   m.Date.Time,
		Deadline:    m.Deadline.Time,
	}
	if m.Amount > 0 {
		w.AmountPerAttendee = money.NewFromFloat(m.Amount, m.Currency)
	}
	return w
}

func loadConfig() (Config, api.Environment, error) {
	// a missing .env file is normal outside local development
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, api.LOCAL, fmt.Errorf("failed to parse env: %w", err)
	}

	appEnv, err := api.ParseEnvironment(cfg.Environment)
	if err != nil {
		return Config{}, api.LOCAL, err
	}

	switch cfg.Storage {
	case StorageBadger, StorageDynamo:
	default:
		return Config{}, api.LOCAL, fmt.Errorf("unknown storage %q", cfg.Storage)
	}

	return cfg, appEnv, nil
}

// resolveAdminAudience prefers the SSM parameter when one is named.
func resolveAdminAudience(ctx context.Context, cfg Config) (string, error) {
	if cfg.AdminAudienceSSMParam == "" {
		return cfg.AdminAudience, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get aws config: %w", err)
	}

	out, err := ssm.NewFromConfig(awsCfg).GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(cfg.AdminAudienceSSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get admin audience from ssm: %w", err)
	}

	return aws.ToString(out.Parameter.Value), nil
}
