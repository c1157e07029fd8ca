package cli

import (
	"errors"

	"auction-worker/internal/domain"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "auction-worker",
	Short: "Drives one procurement auction through its lifecycle",
	Long: `auction-worker prepares the auction document of a tender, schedules its
stages and runs them until the auction ends. Separate sub-commands cancel,
reschedule or announce an auction driven by another worker.`,
	SilenceUsage: true,
}

type options struct {
	configFile  string
	auctionData string
	inMemory    bool
	withAPI     bool
}

var opts options

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps a command error to the process status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, domain.ErrTenderNotFound):
		return 1
	default:
		return 2
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.auctionData, "auction-data", "", "JSON file with tender data; runs the auction in test mode")
	rootCmd.PersistentFlags().BoolVar(&opts.inMemory, "in-memory", false, "keep the auction document in memory instead of Redis")
	rootCmd.PersistentFlags().BoolVar(&opts.withAPI, "with-api", true, "synchronize with the resource API")

	rootCmd.AddCommand(runCmd, prepareCmd, cancelCmd, rescheduleCmd, announceCmd)
}
