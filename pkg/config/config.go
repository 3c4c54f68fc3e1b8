package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Warranty response formats understood by the lookup client.
const (
	FormatHTML = "html"
	FormatJSON = "json"
	FormatList = "list"
	FormatAuto = "auto"
)

// Config represents the tool's configuration file.
type Config struct {
	Endpoints EndpointConfig `yaml:"endpoints"`
	Warranty  WarrantyConfig `yaml:"warranty"`
	HTTP      HTTPConfig     `yaml:"http"`
	SNMP      SNMPConfig     `yaml:"snmp"`
	GLPI      GLPIConfig     `yaml:"glpi"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// EndpointConfig locates the remote collaborators.
type EndpointConfig struct {
	// ProductURL is a fmt template taking the serial snippet and the locale.
	ProductURL string `yaml:"product_url"`
	// WarrantyURL answers the current form POST.
	WarrantyURL string `yaml:"warranty_url"`
	// LegacyWarrantyURL answers GET ?sn=&country= with the list or JSON formats.
	LegacyWarrantyURL string `yaml:"legacy_warranty_url"`
	ASDTableURL       string `yaml:"asd_table_url"`
}

// WarrantyConfig controls how coverage is requested and parsed.
type WarrantyConfig struct {
	Country string `yaml:"country"`
	Locale  string `yaml:"locale"`
	Format  string `yaml:"format"`
}

// HTTPConfig tunes the shared HTTP client.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// SNMPConfig is used when serials are read from network devices.
type SNMPConfig struct {
	Community string        `yaml:"community"`
	Port      uint16        `yaml:"port"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
}

// GLPIConfig stores API information.
type GLPIConfig struct {
	BaseURL   string           `yaml:"base_url"`
	AppToken  string           `yaml:"app_token"`
	UserToken string           `yaml:"user_token"`
	OAuth     *GLPIOAuthConfig `yaml:"oauth"`
}

// GLPIOAuthConfig stores OAuth2 credentials for the high-level API.
type GLPIOAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Scope        string `yaml:"scope"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Endpoints: EndpointConfig{
			ProductURL:        "https://support-sp.apple.com/sp/product?cc=%s&lang=%s",
			WarrantyURL:       "https://selfsolve.apple.com/wcResults.do",
			LegacyWarrantyURL: "https://selfsolve.apple.com/warrantyChecker.do",
			ASDTableURL:       "https://github.com/chilcote/warranty/raw/master/asdcheck",
		},
		Warranty: WarrantyConfig{
			Country: "USA",
			Locale:  "en_US",
			Format:  FormatHTML,
		},
		HTTP: HTTPConfig{
			Timeout:   10 * time.Second,
			UserAgent: "warranty/1.0",
		},
		SNMP: SNMPConfig{
			Community: "public",
			Port:      161,
			Timeout:   2 * time.Second,
			Retries:   1,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML configuration file over the defaults. A missing file is
// not an error. Environment variables (and a .env file in the working
// directory) override file values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.Warranty.Country, "WARRANTY_COUNTRY")
	setString(&c.Warranty.Locale, "WARRANTY_LOCALE")
	setString(&c.Warranty.Format, "WARRANTY_FORMAT")
	setString(&c.SNMP.Community, "SNMP_COMMUNITY")
	setString(&c.GLPI.BaseURL, "GLPI_BASE_URL")
	setString(&c.GLPI.AppToken, "GLPI_APP_TOKEN")
	setString(&c.GLPI.UserToken, "GLPI_USER_TOKEN")
	if v := strings.TrimSpace(os.Getenv("WARRANTY_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse WARRANTY_TIMEOUT: %w", err)
		}
		c.HTTP.Timeout = d
	}
	return nil
}

// Validate checks values that would otherwise fail late, mid-batch.
func (c *Config) Validate() error {
	c.Warranty.Format = strings.ToLower(strings.TrimSpace(c.Warranty.Format))
	switch c.Warranty.Format {
	case FormatHTML, FormatJSON, FormatList, FormatAuto:
	default:
		return fmt.Errorf("unknown warranty format %q (want html, json, list or auto)", c.Warranty.Format)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if strings.Count(c.Endpoints.ProductURL, "%s") != 2 {
		return fmt.Errorf("product_url must contain two %%s placeholders (code, locale)")
	}
	if c.Endpoints.WarrantyURL == "" || c.Endpoints.LegacyWarrantyURL == "" {
		return fmt.Errorf("warranty endpoints must be set")
	}
	return nil
}
