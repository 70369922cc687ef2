package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasklift/tasklift/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tasklift configuration",
	Long:  `Commands for creating and validating tasklift.yaml configuration files.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a tasklift.yaml template",
	Long: `Creates a tasklift.yaml configuration file with all available options
and their default values.

Example:
  tasklift config init
  tasklift config init --output /etc/tasklift/tasklift.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a tasklift.yaml configuration file",
	Long: `Reads and validates a configuration file, reporting any errors.

Example:
  tasklift config validate
  tasklift config validate tasklift.yaml
  tasklift config validate --config /etc/tasklift/tasklift.yaml`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringP("output", "o", "tasklift.yaml", "output file path")
	configInitCmd.Flags().Bool("stdout", false, "print to stdout instead of file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	toStdout, _ := cmd.Flags().GetBool("stdout")
	output, _ := cmd.Flags().GetString("output")

	template := config.GenerateTemplate()

	if toStdout {
		fmt.Print(template)
		return nil
	}

	// Check if file already exists
	if _, err := os.Stat(output); err == nil {
		return fmt.Errorf("file %s already exists (use --stdout to print to stdout)", output)
	}

	if err := os.WriteFile(output, []byte(template), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Created %s\n", output)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	var cfgPath string

	if len(args) > 0 {
		cfgPath = args[0]
	} else if cfgFile != "" {
		cfgPath = cfgFile
	} else {
		cfgPath = "tasklift.yaml"
	}

	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s is valid\n", cfgPath)
	fmt.Fprintf(os.Stderr, "  model: %s\n", cfg.AI.Model)
	fmt.Fprintf(os.Stderr, "  storage: %s\n", cfg.Storage.Backend)
	return nil
}
