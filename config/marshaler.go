package config

import (
	"encoding/json"

	"gopkg.in/yaml.v2"
)

func MarshalJSON(config Config) ([]byte, error) {
	return json.MarshalIndent(config, "", "  ")
}

func MarshalYAML(config Config) ([]byte, error) {
	return yaml.Marshal(config)
}

// UnmarshalYAML decodes bz over config, so fields absent from bz keep their
// current values.
func UnmarshalYAML(bz []byte, config *Config) error {
	return yaml.UnmarshalStrict(bz, config)
}
