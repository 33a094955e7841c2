package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"npatlas_curation"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4200"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// NP Atlas API
	AtlasBaseURL      string `envconfig:"ATLAS_BASE_URL" default:"https://npatlas-dev.chem.sfu.ca/api/v1"`
	AtlasAPIKey       string `envconfig:"ATLAS_APIKEY"`
	AtlasUsername     string `envconfig:"ATLAS_USERNAME" required:"true"`
	AtlasPassword     string `envconfig:"ATLAS_PASSWORD" required:"true"`
	AtlasClientID     string `envconfig:"ATLAS_CLIENT_ID" required:"true"`
	AtlasClientSecret string `envconfig:"ATLAS_CLIENT_SECRET" required:"true"`

	// Struktur-Normalisierung (externer RDKit-Service)
	StructureServiceURL string `envconfig:"STRUCTURE_SERVICE_URL" default:"http://localhost:8100"`

	// Checker-Verhalten
	StrictFlatMatch bool   `envconfig:"CHECKER_STRICT_FLAT_MATCH" default:"false"`
	AutoCheck       bool   `envconfig:"CHECKER_AUTO_CHECK" default:"false"`
	CronSchedule    string `envconfig:"CRON_SCHEDULE" default:"0 2 * * *"`

	SlackWebhookURL string `envconfig:"SLACK_WEBHOOK_URL"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
