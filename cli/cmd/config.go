package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize cryptosvc configuration",
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print the effective configuration (file, env, flags merged), secrets redacted",
	RunE:  runConfigView,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a single configuration value in dot notation (e.g. store.type)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file with default values",
	RunE:  runConfigInit,
}

var configForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd, configGetCmd, configInitCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")
}

func runConfigView(cmd *cobra.Command, args []string) error {
	settings := viper.AllSettings()
	redactSensitive(settings)
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !viper.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	if isSensitiveFlag(key) {
		fmt.Printf("%s = [REDACTED]\n", key)
		return nil
	}
	fmt.Printf("%s = %v\n", key, viper.Get(key))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := getConfigFilePath()
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	template := map[string]any{
		"store": map[string]any{
			"type": "memory",
			"path": ".cryptosvc/keys",
		},
		"cache": map[string]any{
			"local_size": 4096,
		},
		"default_validity": "8760h",
		"shutdown_timeout": "5s",
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(template)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration template: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Configuration file created: %s\n", path)
	return nil
}

func redactSensitive(m map[string]any) {
	for key, value := range m {
		if isSensitiveFlag(key) {
			m[key] = "[REDACTED]"
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			redactSensitive(nested)
		}
	}
}
