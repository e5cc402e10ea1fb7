package nav

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the service configuration from a YAML file, fills
// defaults for anything left out and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the tunables for values the engine cannot work with.
func (c *Config) Validate() error {
	boxes := map[string]TargetDimensions{
		"guidance.intermediate": c.Guidance.Intermediate,
		"guidance.final":        c.Guidance.Final,
	}
	for _, name := range []string{"guidance.intermediate", "guidance.final"} {
		d := boxes[name]
		if d.Width <= 0 || d.Depth <= 0 || d.Height <= 0 {
			return fmt.Errorf("%s: width, depth and height must be positive", name)
		}
	}
	if c.Guidance.CloseRadius < 0 {
		return fmt.Errorf("guidance.closeRadius must not be negative")
	}
	if c.Guidance.FacingLateralRatio < 0 || c.Guidance.FacingCone < 0 {
		return fmt.Errorf("guidance facing thresholds must not be negative")
	}
	if c.Alignment.AgreementRadius < 0 {
		return fmt.Errorf("alignment.agreementRadius must not be negative")
	}
	if c.Heading.BufferSize < 2 {
		return fmt.Errorf("heading.bufferSize must be at least 2, got %d", c.Heading.BufferSize)
	}
	if c.Heading.MinDistance < 0 || c.Heading.LinearTolerance < 0 {
		return fmt.Errorf("heading distances must not be negative")
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
