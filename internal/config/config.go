package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          string
	JWTSecret     string
	MongoURI      string
	DBName        string
	SkipAuth      bool
	Environment   string
	AppId         string
	RoutingConfig string // Path to the optional routing YAML file

	Routing Routing
}

// Routing holds engine settings read from the routing YAML file.
type Routing struct {
	AdminRoles        []string      `yaml:"admin_roles"`
	StandardRoles     []string      `yaml:"standard_roles"`
	LeadReferenceType string        `yaml:"lead_reference_type"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	ResyncSchedule    string        `yaml:"resync_schedule"`
	Timezone          string        `yaml:"timezone"`
}

func defaultRouting() Routing {
	return Routing{
		AdminRoles:        []string{"Administrator", "System Manager"},
		StandardRoles:     []string{"Sales User", "Sales Manager"},
		LeadReferenceType: "crm_lead",
		LockTTL:           30 * time.Second,
		ResyncSchedule:    "@every 15m",
	}
}

// Location returns the timezone used for shift resolution.
func (r Routing) Location() *time.Location {
	if r.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		JWTSecret:     getEnv("JWT_SECRET", "secret"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:        getEnv("DB_NAME", "lead-routing"),
		SkipAuth:      getEnv("SKIP_AUTH", "false") == "true",
		Environment:   getEnv("ENVIRONMENT", "development"),
		AppId:         getEnv("APP_ID", "lead-routing"),
		RoutingConfig: getEnv("ROUTING_CONFIG", "routing.yaml"),
	}

	routing, err := LoadRouting(cfg.RoutingConfig)
	if err != nil {
		return nil, err
	}
	cfg.Routing = routing

	return cfg, nil
}

// LoadRouting reads the routing file at path. A missing file yields defaults.
func LoadRouting(path string) (Routing, error) {
	routing := defaultRouting()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return routing, nil
		}
		return routing, fmt.Errorf("read routing config %s: %w", path, err)
	}

	return ParseRouting(data)
}

// ParseRouting decodes YAML over the defaults. Keys absent from data keep their default.
func ParseRouting(data []byte) (Routing, error) {
	routing := defaultRouting()
	if err := yaml.Unmarshal(data, &routing); err != nil {
		return routing, fmt.Errorf("parse routing config: %w", err)
	}
	if routing.LockTTL <= 0 {
		return routing, fmt.Errorf("parse routing config: lock_ttl must be positive")
	}
	if routing.Timezone != "" {
		if _, err := time.LoadLocation(routing.Timezone); err != nil {
			return routing, fmt.Errorf("parse routing config: timezone: %w", err)
		}
	}
	return routing, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
