package utils

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// ReadJSONFileInto opens a file.json and unmarshals it into target.
func ReadJSONFileInto(fileNamePath string, target interface{}) error {

	byteValue, err := os.ReadFile(fileNamePath)
	if err != nil {
		return err
	}

	var json = jsoniter.ConfigFastest
	return json.Unmarshal(byteValue, target)
}

// ReadYAMLFileInto opens a file.yaml and unmarshals it into target.
func ReadYAMLFileInto(fileNamePath string, target interface{}) error {

	byteValue, err := os.ReadFile(fileNamePath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(byteValue, target)
}

// MarshalJSON is a thin wrapper so callers share the same jsoniter configuration.
func MarshalJSON(input interface{}) ([]byte, error) {

	var json = jsoniter.ConfigFastest
	return json.Marshal(input)
}
