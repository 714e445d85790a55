// Package cli holds the starledger command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/xraph/starledger/config"
)

var (
	cfgFile    string
	dotenvFile string
)

var rootCmd = &cobra.Command{
	Use:   "starledger",
	Short: "Family star ledger service",
	Long: `starledger keeps a family's star ledger: children request stars for
quests, parents approve them, stars are spent on rewards and may be
borrowed on credit that accrues tiered interest at settlement.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&dotenvFile, "env-file", ".env", "optional dotenv file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (config.Config, error) {
	return config.Load(cfgFile, dotenvFile)
}
