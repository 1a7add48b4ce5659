package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"slotline/internal/domain"
)

// Config models slotline.yml.
type Config struct {
	Campaign struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		Window struct {
			Start string `yaml:"start"`
			End   string `yaml:"end"`
		} `yaml:"window"`
	} `yaml:"campaign"`
	Grid struct {
		Times []string `yaml:"times"`
	} `yaml:"grid"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// Webhook receives reservation events over HTTP POST.
type Webhook struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

var slotPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with sl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Campaign.ID == "" {
		return fmt.Errorf("config.campaign.id is required")
	}
	if (c.Campaign.Window.Start == "") != (c.Campaign.Window.End == "") {
		return fmt.Errorf("config.campaign.window needs both start and end")
	}
	if len(c.Grid.Times) == 0 {
		return fmt.Errorf("config.grid.times is required")
	}
	seen := map[string]bool{}
	for _, t := range c.Grid.Times {
		if !slotPattern.MatchString(t) {
			return fmt.Errorf("grid time %q is not HH:MM", t)
		}
		if seen[t] {
			return fmt.Errorf("grid time %q repeated", t)
		}
		seen[t] = true
	}
	for i, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("webhook %d has no url", i)
		}
	}
	return nil
}

// SlotGrid builds the interview grid from the configured times.
func (c *Config) SlotGrid() (domain.Grid, error) {
	return domain.NewGrid(c.Grid.Times)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "slotline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(campaignID string) string {
	return fmt.Sprintf(defaultTemplate, campaignID)
}

// Default returns the default Config struct for a campaign.
func Default(campaignID string) *Config {
	cfg, err := FromYAML([]byte(GenerateDefault(campaignID)))
	if err != nil {
		// the template is static; a parse failure is a programming error
		panic(err)
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `campaign:
  id: %s
  name: ""

grid:
  times: ["09:00", "10:00", "11:00", "12:00", "14:00", "15:00", "16:00", "17:00"]

webhooks: []
`
