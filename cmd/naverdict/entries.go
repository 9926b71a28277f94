package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/naverdict/internal/database"
	"github.com/at-ishikawa/naverdict/internal/dictionary"
)

func newEntriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "entries",
		Short: "List the dictionary entries persisted in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled() {
				return fmt.Errorf("no database configured: set database.host in the config file")
			}

			db, err := database.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("database.Open > %w", err)
			}
			defer func() {
				_ = db.Close()
			}()

			entries, err := dictionary.NewDBRepository(db).FindAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("repository.FindAll > %w", err)
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetEscapeHTML(false)
			encoder.SetIndent("", "  ")
			for _, entry := range entries {
				if err := encoder.Encode(listedEntry{
					Word:      entry.Word,
					Variant:   entry.Variant,
					SourceURL: entry.SourceURL,
					UpdatedAt: entry.UpdatedAt.Format("2006-01-02 15:04:05"),
				}); err != nil {
					return fmt.Errorf("json.Encode > %w", err)
				}
			}
			return nil
		},
	}
}

type listedEntry struct {
	Word      string `json:"word"`
	Variant   string `json:"variant"`
	SourceURL string `json:"source_url"`
	UpdatedAt string `json:"updated_at"`
}
