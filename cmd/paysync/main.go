package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "paysync",
		Short: "paysync - AR payment application sync operator",
		Long: `paysync drives payment application data between the ERP sync gateway
and the local reconciliation database. It fetches applications for selected
payments in paced batches, runs full offset-based resyncs, and serves a
dashboard for watching either run live.`,
	}
)

func init() {
	// Gateway tokens usually live in a .env next to the working copy
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
