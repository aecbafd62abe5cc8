package tcc

import (
	"github.com/houseofcat/turbocookedcassandra/pkg/utils"
)

// ConvertJSONFileToConfig opens a file.json and converts to ClusterSeasoning.
func ConvertJSONFileToConfig(fileNamePath string) (*ClusterSeasoning, error) {

	config := &ClusterSeasoning{}
	err := utils.ReadJSONFileInto(fileNamePath, config)

	return config, err
}

// ConvertYAMLFileToConfig opens a file.yaml and converts to ClusterSeasoning.
func ConvertYAMLFileToConfig(fileNamePath string) (*ClusterSeasoning, error) {

	config := &ClusterSeasoning{}
	err := utils.ReadYAMLFileInto(fileNamePath, config)

	return config, err
}
