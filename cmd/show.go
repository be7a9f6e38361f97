package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-preprocessor/internal/model"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the preprocessing result of a job posting",
	Run: func(cmd *cobra.Command, _ []string) {
		show(cmd)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().String("id", "", "posting id (prompted when empty)")
}

func show(cmd *cobra.Command) {
	ctx := context.Background()

	a, err := setup(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id, err = choosePosting(ctx, a)
		if err != nil {
			a.logger.Fatal("choosing a posting", zap.Error(err))
		}
	}

	posting, err := a.store.Get(ctx, id)
	if err != nil {
		a.logger.Fatal("getting posting", zap.Error(err))
	}

	fmt.Print(renderPosting(posting))
}

func choosePosting(ctx context.Context, a *appContext) (string, error) {
	postings, err := a.store.List(ctx, false)
	if err != nil {
		return "", err
	}
	if len(postings) == 0 {
		return "", fmt.Errorf("no postings stored, use the import command first")
	}

	items := make([]string, 0, len(postings))
	for _, p := range postings {
		status := "pending"
		if p.IsPreprocessed() {
			status = "done"
		}
		items = append(items, fmt.Sprintf("%s (%s)", p.ID, status))
	}

	postingPrompt := promptui.Select{
		Label: "Choose a posting and press ENTER",
		Items: items,
		Size:  10,
	}

	idx, _, err := postingPrompt.Run()
	if err != nil {
		return "", err
	}
	return postings[idx].ID, nil
}

func renderPosting(p *model.JobPosting) string {
	var b strings.Builder

	record := p.ExtractedRequirements()
	if record == nil {
		fmt.Fprintf(&b, "%s: not preprocessed yet\n", p.ID)
		return b.String()
	}

	// do not bother error since the record was just decoded from json
	pretty, _ := json.MarshalIndent(record, "", "  ")
	fmt.Fprintf(&b, "%s (valid: %t, relevant cards: %s)\n%s\n", p.ID, record.IsValid(), strings.Join(p.RelevantCardIDs(), ", "), pretty)

	if len(record.SkillEvidence) > 0 {
		b.WriteString("\nEvidence:\n")
	}
	for _, ev := range record.SkillEvidence {
		fmt.Fprintf(&b, "- %s [%s]\n", ev.SkillName, ev.Category)
		for _, span := range ev.EvidenceSpans {
			fmt.Fprintf(&b, "    %d-%d %q\n", span.Start, span.End, span.Text)
		}
	}

	return b.String()
}
