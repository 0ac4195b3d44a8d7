package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  "Prints the merged configuration from defaults, config file, and environment, with secrets redacted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		redacted := *cfg
		redacted.Store.DSN = redactSecret(redacted.Store.DSN)
		redacted.Anthropic.APIKey = redactSecret(redacted.Anthropic.APIKey)
		redacted.OCR.MistralKey = redactSecret(redacted.OCR.MistralKey)
		redacted.Notion.APIKey = redactSecret(redacted.Notion.APIKey)

		out, err := yaml.Marshal(&redacted)
		if err != nil {
			return eris.Wrap(err, "config: marshal")
		}

		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// redactSecret masks a configured secret while keeping empty values
// visibly empty.
func redactSecret(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}
