package cmd

import (
	"context"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-preprocessor/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Store a job posting description for preprocessing",
	Run: func(cmd *cobra.Command, _ []string) {
		importPosting(cmd)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("id", "", "posting id")
	importCmd.Flags().StringP("file", "f", "-", "file with the posting text, - reads stdin")
	importCmd.MarkFlagRequired("id")
}

func importPosting(cmd *cobra.Command) {
	ctx := context.Background()

	a, err := setup(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	id, _ := cmd.Flags().GetString("id")
	file, _ := cmd.Flags().GetString("file")

	var data []byte
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		a.logger.Fatal("reading posting text", zap.String("file", file), zap.Error(err))
	}

	description := strings.TrimSpace(string(data))
	if description == "" {
		a.logger.Fatal("posting text is empty", zap.String("file", file))
	}

	if err := a.store.Import(ctx, model.NewJobPosting(strings.TrimSpace(id), description)); err != nil {
		a.logger.Fatal("importing posting", zap.Error(err))
	}

	a.logger.Info("posting imported", zap.String("posting_id", id), zap.Int("length", len([]rune(description))))
}
