package main

import (
	"github.com/spf13/cobra"

	"batchqc/internal/models"
	"batchqc/internal/seed"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load batch fixtures into the store",
	Long: `Loads batches from a YAML fixture file, or the built-in fixtures when
--file is not given. Batches whose id already exists are skipped.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML fixture file (default: built-in fixtures)")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	var batches []models.Batch
	if seedFile != "" {
		batches, err = seed.LoadFile(seedFile)
	} else {
		batches, err = seed.Default()
	}
	if err != nil {
		return err
	}

	s, err := openStore(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}
	defer s.Close()

	added, err := seed.Apply(cmd.Context(), s, batches)
	if err != nil {
		return err
	}
	log.Info().Int("added", added).Int("skipped", len(batches)-added).Msg("fixtures loaded")
	return nil
}
