package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func refreshTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-tokens",
		Short: "Refresh POS tokens that expire within the refresh window, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := buildComponents(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.sweeper.Run(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
