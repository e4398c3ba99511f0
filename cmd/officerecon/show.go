package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database"
	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/report"
)

var showNoColor bool

var showCmd = &cobra.Command{
	Use:   "show <record-id|sha256>",
	Short: "Print the stored dossier of a record, or of every record with a hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openCollaborators(ctx)
		if err != nil {
			return err
		}
		defer c.Close(ctx)
		if c.db == nil {
			return errors.New("no record store configured; set DATABASE_TYPE")
		}

		var records []models.FileRecord
		if models.ValidateSHA256(args[0]) == nil {
			records, err = c.db.FindByHash(ctx, args[0])
			if err != nil {
				return err
			}
		} else {
			rec, err := c.db.GetRecord(ctx, args[0])
			if errors.Is(err, database.ErrRecordNotFound) {
				return fmt.Errorf("record %s not found", args[0])
			}
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		if len(records) == 0 {
			return fmt.Errorf("no records with hash %s", args[0])
		}

		r := report.NewRenderer(cmd.OutOrStdout(), !showNoColor && !color.NoColor)
		for _, rec := range records {
			r.Dossier(rec)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showNoColor, "no-color", false, "disable colored output")
}
