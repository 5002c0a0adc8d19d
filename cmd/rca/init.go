package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/rcagov/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an RCA database in the current directory",
	Long: `Create .rca/rca.db in the current directory and apply the schema.
Later commands run from this directory find the database without --db.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"offline": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}

		dbPath, err := storage.InitProject(cwd)
		if err != nil {
			return err
		}

		s, err := storage.NewStorage(context.Background(), &storage.Config{
			Backend: "sqlite",
			Path:    dbPath,
		})
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		if err := s.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}

		fmt.Printf("%s Initialized RCA database at %s\n", color.GreenString("✓"), dbPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
