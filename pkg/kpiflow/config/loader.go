package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// decoders maps file extensions to their format decoder.
var decoders = map[string]func([]byte) (Config, error){
	".yaml": FromYAML,
	".yml":  FromYAML,
	".json": FromJSON,
}

// FromFile loads configuration from a .yaml, .yml or .json file.
//
// $VAR and ${VAR} references in the file are replaced from the environment
// before decoding.
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return decode([]byte(os.ExpandEnv(string(data))))
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	return decodeMap("yaml", data, yaml.Unmarshal)
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	return decodeMap("json", data, json.Unmarshal)
}

func decodeMap(format string, data []byte, unmarshal func([]byte, any) error) (Config, error) {
	var m map[string]any
	if err := unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", format, err)
	}
	return New(m), nil
}
