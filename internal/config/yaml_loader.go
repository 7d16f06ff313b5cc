package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// configSearchPaths are tried in order when looking for YAML overlays.
var configSearchPaths = []string{"./configs", "../configs", "../../configs"}

// loadYAMLConfig loads operational configuration from YAML files based on the environment.
// It first loads defaults.yaml, then overlays environment-specific configuration
// (local.yaml, nonprod.yaml, or prod.yaml). Both files are optional.
func loadYAMLConfig(env Environment) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("defaults")
	for _, p := range configSearchPaths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read defaults config: %w", err)
		}
	}

	var envConfigFile string
	switch env {
	case NonProd:
		envConfigFile = "nonprod"
	case Prod:
		envConfigFile = "prod"
	case Local:
		fallthrough
	default:
		envConfigFile = "local"
	}

	envViper := viper.New()
	envViper.SetConfigType("yaml")
	envViper.SetConfigName(envConfigFile)
	for _, p := range configSearchPaths {
		envViper.AddConfigPath(p)
	}

	if err := envViper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s config: %w", envConfigFile, err)
		}
		return v, nil
	}

	if err := v.MergeConfigMap(envViper.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to merge environment config: %w", err)
	}

	return v, nil
}

// loadViewBatchSizes returns the per-view batch sizes from the "loader.views"
// section of the YAML overlay. View names are lower-cased.
func loadViewBatchSizes(env Environment) (map[string]int, error) {
	v, err := loadYAMLConfig(env)
	if err != nil {
		return nil, err
	}

	raw := v.GetStringMap("loader.views")
	views := make(map[string]int, len(raw))
	for name := range raw {
		views[strings.ToLower(name)] = v.GetInt("loader.views." + name)
	}
	return views, nil
}
