package session

import (
	"io"

	yaml "gopkg.in/yaml.v2"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendHTTP     Backend = "http"
	BackendBrowser  Backend = "browser"
)

type StoreConfig struct {
	// Paths is either "sequential" or "uuid"
	Paths string `yaml:"paths"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RemoteConfig struct {
	BaseURL string            `yaml:"baseURL"`
	Debug   bool              `yaml:"debug"`
	Headers map[string]string `yaml:"headers"`
}

type BrowserConfig struct {
	BaseURL string `yaml:"baseURL"`
	// Driver is either "chrome" or "http"
	Driver   string `yaml:"driver"`
	Headless *bool  `yaml:"headless"`
}

func (bc BrowserConfig) IsHeadless() bool {
	return bc.Headless == nil || *bc.Headless
}

type NotificationsConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type Config struct {
	Title         string               `yaml:"title"`
	Backend       Backend              `yaml:"backend"`
	Store         StoreConfig          `yaml:"store"`
	Postgres      *PostgresConfig      `yaml:"postgres"`
	HTTP          *RemoteConfig        `yaml:"http"`
	Browser       *BrowserConfig       `yaml:"browser"`
	Notifications *NotificationsConfig `yaml:"notifications"`
}

// DefaultConfig is an in memory session
func DefaultConfig() *Config {
	return &Config{
		Title:   "Hyperstate",
		Backend: BackendMemory,
		Store:   StoreConfig{Paths: "sequential"},
	}
}

func LoadConfiguration(data io.Reader) (*Config, error) {

	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	err = yaml.Unmarshal(buf, cfg)

	return cfg, err
}
