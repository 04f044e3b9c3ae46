package pools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ConvertJSONFileToConfig opens a file.json and converts to RabbitSeasoning.
func ConvertJSONFileToConfig(fileNamePath string) (*RabbitSeasoning, error) {

	byteValue, err := os.ReadFile(fileNamePath)
	if err != nil {
		return nil, err
	}

	config := &RabbitSeasoning{}
	var json = jsoniter.ConfigFastest
	if err = json.Unmarshal(byteValue, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, config.validate()
}

// ConvertYAMLFileToConfig opens a file.yaml and converts to RabbitSeasoning.
func ConvertYAMLFileToConfig(fileNamePath string) (*RabbitSeasoning, error) {

	byteValue, err := os.ReadFile(fileNamePath)
	if err != nil {
		return nil, err
	}

	config := &RabbitSeasoning{}
	if err = yaml.Unmarshal(byteValue, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, config.validate()
}

// ConvertTOMLFileToConfig opens a file.toml and converts to RabbitSeasoning.
func ConvertTOMLFileToConfig(fileNamePath string) (*RabbitSeasoning, error) {

	byteValue, err := os.ReadFile(fileNamePath)
	if err != nil {
		return nil, err
	}

	config := &RabbitSeasoning{}
	if err = toml.Unmarshal(byteValue, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, config.validate()
}

// LoadConfig picks the decoder from the file extension (.json, .yaml/.yml, .toml).
func LoadConfig(fileNamePath string) (*RabbitSeasoning, error) {
	switch strings.ToLower(filepath.Ext(fileNamePath)) {
	case ".json":
		return ConvertJSONFileToConfig(fileNamePath)
	case ".yaml", ".yml":
		return ConvertYAMLFileToConfig(fileNamePath)
	case ".toml":
		return ConvertTOMLFileToConfig(fileNamePath)
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidConfig, filepath.Ext(fileNamePath))
	}
}

func (rs *RabbitSeasoning) validate() error {
	if rs.PoolConfig == nil {
		return fmt.Errorf("%w: missing PoolConfig section", ErrInvalidConfig)
	}
	return rs.PoolConfig.Validate()
}
