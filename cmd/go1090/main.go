package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go1090/internal/app"
)

func main() {
	var config app.Config
	var receiverLat, receiverLon float64
	var receiverSet bool

	rootCmd := &cobra.Command{
		Use:   "go1090",
		Short: "ADS-B Decoder (dump1090-style)",
		Long: `ADS-B Decoder using RTL-SDR (dump1090-style implementation).

Captures I/Q samples from RTL-SDR at 2MHz, demodulates ADS-B messages using
a correlation-based preamble search with phase tracking and confidence
scoring, validates and corrects CRC, recovers ICAO addresses on short
frames, tracks aircraft state, and exports BaseStation (SBS) and SQLite
history.

Example usage:
  go1090 --frequency 1090000000 --gain auto --device 0 --receiver-lat 52.3 --receiver-lon 4.8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.ShowVersion {
				app.ShowVersion()
				return nil
			}

			if cmd.Flags().Changed("receiver-lat") && cmd.Flags().Changed("receiver-lon") {
				receiverSet = true
			}
			config.ReceiverLat = receiverLat
			config.ReceiverLon = receiverLon
			config.ReceiverSet = receiverSet

			application := app.NewApplication(config)
			return application.Start()
		},
	}

	rootCmd.Flags().Uint32VarP(&config.Frequency, "frequency", "f", app.DefaultFrequency, "Frequency to tune to (Hz)")
	rootCmd.Flags().StringVarP(&config.Gain, "gain", "g", app.DefaultGain, `Gain: "auto", "max", or a decibel value (e.g. "40.2")`)
	rootCmd.Flags().IntVarP(&config.DeviceIndex, "device", "d", 0, "RTL-SDR device index")

	rootCmd.Flags().Float64Var(&receiverLat, "receiver-lat", 0, "Receiver latitude, for range gating and coverage analysis")
	rootCmd.Flags().Float64Var(&receiverLon, "receiver-lon", 0, "Receiver longitude, for range gating and coverage analysis")
	rootCmd.Flags().Float64Var(&config.MaxRangeNM, "max-range-nm", app.DefaultMaxRangeNM, "Reject decoded positions farther than this from the receiver")

	rootCmd.Flags().BoolVar(&config.FixErrors, "fix-errors", true, "Attempt single-bit CRC error correction")
	rootCmd.Flags().BoolVar(&config.CRCCheck, "crc-check", true, "Validate message CRC before tracking")
	rootCmd.Flags().StringVar(&config.ShowOnly, "show-only", "", "Only track messages from this ICAO hex address")

	rootCmd.Flags().Float64Var(&config.SnipLevel, "snip-level", 0, "Zero magnitude samples below this level before demodulation (0 disables)")
	rootCmd.Flags().StringVar(&config.DumpRaw, "dump-raw", "", "Write raw I/Q samples to this file as they're captured")

	rootCmd.Flags().StringVar(&config.DBPath, "db-path", app.DefaultDBPath, "SQLite history database path")

	rootCmd.Flags().StringVarP(&config.LogDir, "log-dir", "l", "./logs", "Log directory")
	rootCmd.Flags().BoolVarP(&config.LogRotateUTC, "utc", "u", true, "Use UTC for log rotation")
	rootCmd.Flags().BoolVarP(&config.Verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.Flags().BoolVar(&config.ShowVersion, "version", false, "Show version information")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
