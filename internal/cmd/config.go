package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	embeddedconfig "github.com/hummingbird-labs/hummingbird/config"
	"github.com/hummingbird-labs/hummingbird/internal/appdir"
	"github.com/hummingbird-labs/hummingbird/internal/fileutil"
)

var (
	configOutputPath string
	configForce      bool
)

// configCmd represents the config parent command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Hummingbird configuration",
}

var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write the default configuration file",
	Long: `Write the embedded default configuration to
$HUMMINGBIRD_DIR/config.yaml, or to --output.

Examples:
  hummingbird config create                     # $HUMMINGBIRD_DIR/config.yaml
  hummingbird config create --output ./hb.yaml  # custom path
  hummingbird config create --force             # overwrite an existing file`,
	Args: cobra.NoArgs,
	RunE: runConfigCreate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after files and environment overrides
have been applied, together with where it was loaded from.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCreateCmd)
	configCmd.AddCommand(configShowCmd)

	configCreateCmd.Flags().StringVarP(&configOutputPath, "output", "o", "",
		"File to write (default: $HUMMINGBIRD_DIR/config.yaml)")
	configCreateCmd.Flags().BoolVarP(&configForce, "force", "f", false,
		"Overwrite an existing configuration file")
}

func runConfigCreate(cmd *cobra.Command, args []string) error {
	path := configOutputPath
	if path == "" {
		var err error
		path, err = appdir.ConfigPath()
		if err != nil {
			return err
		}
	}
	return writeDefaultConfig(cmd, path, configForce)
}

func writeDefaultConfig(cmd *cobra.Command, path string, force bool) error {
	out := cmd.OutOrStdout()
	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(out, "⚠️  Configuration file already exists: %s\n", path)
		fmt.Fprintln(out, "Use --force to overwrite the existing file.")
		return nil
	}

	if err := fileutil.WriteFileAtomic(path, embeddedconfig.DefaultConfigYAML, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Fprintf(out, "✅ Configuration file created: %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	source := configResult.Source.String()
	if configResult.SourcePath != "" {
		source += " (" + configResult.SourcePath + ")"
	}
	fmt.Fprintf(out, "# source: %s\n", source)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}
