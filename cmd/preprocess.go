package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-preprocessor/internal/ai"
	"github.com/spigell/job-preprocessor/internal/config"
	"github.com/spigell/job-preprocessor/internal/model"
	"github.com/spigell/job-preprocessor/internal/pipeline"
	"github.com/spigell/job-preprocessor/internal/scheduler"
)

// shutdownGrace bounds how long running jobs may finish after an interrupt
// before the store is closed under them.
const shutdownGrace = 30 * time.Second

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Extract requirements and skill evidence for stored job postings",
	Run: func(cmd *cobra.Command, _ []string) {
		preprocess(cmd)
	},
}

func init() {
	rootCmd.AddCommand(preprocessCmd)

	preprocessCmd.Flags().BoolP("all", "a", false, "reprocess postings that already have a result")
	preprocessCmd.Flags().StringSlice("id", nil, "process only the postings with these ids")
}

func preprocess(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	logger := a.logger
	logger.Info("starting the job-preprocessor", zap.String("version", version))

	all, _ := cmd.Flags().GetBool("all")
	ids, _ := cmd.Flags().GetStringSlice("id")

	postings, err := selectPostings(ctx, a, ids, all)
	if err != nil {
		logger.Fatal("loading job postings", zap.Error(err))
	}
	if len(postings) == 0 {
		logger.Info("exiting", zap.String("reason", "no postings to preprocess"))
		return
	}

	if _, ok := a.config.ModelFor(config.JobPreprocessing); !ok {
		logger.Warn("no model configured, preprocessing jobs will fail",
			zap.String("hint", "set ai.models."+config.JobPreprocessing),
		)
	}

	completer, err := a.newCompleter(ctx)
	if err != nil {
		logger.Fatal("configuring ai completer", zap.Error(err))
	}

	doc, skills, err := a.loadInventory()
	if err != nil {
		logger.Fatal("loading inventory", zap.Error(err))
	}

	sink, closeSink := a.newSink()
	defer closeSink()

	backend, err := ai.ParseBackend(a.config.AI.Backend)
	if err != nil {
		logger.Fatal("parsing ai backend", zap.Error(err))
	}

	p := pipeline.New(pipeline.Deps{
		Completer: completer,
		Skills:    skills,
		Saver:     a.store,
		Sink:      sink,
		Logger:    logger,
	}, pipeline.Config{
		Models:      a.config.AI.Models,
		Temperature: a.config.AI.Temperature,
		Backend:     backend,
		Provider:    a.config.AI.Provider,
	})

	s := scheduler.New(ctx, scheduler.Options{Limit: a.config.Concurrency, Logger: logger})
	pre := pipeline.NewPreprocessor(p, s)

	logger.Info("queueing postings",
		zap.Int("count", len(postings)),
		zap.Int("cards", len(doc.Cards)),
		zap.Int("concurrency", s.Limit()),
	)

	for _, posting := range postings {
		pre.PreprocessInBackground(posting, doc.Cards)
	}

	if err := pre.Wait(ctx); err != nil {
		logger.Warn("interrupted, waiting for running jobs",
			zap.Duration("grace", shutdownGrace),
			zap.Error(err),
		)
		graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := s.Stop(graceCtx); err != nil {
			logger.Warn("stopping scheduler", zap.Error(err))
		}
	} else if err := s.Close(ctx); err != nil {
		logger.Warn("closing scheduler", zap.Error(err))
	}

	printSummary(postings)

	stats := s.Stats()
	logger.Info("preprocessing finished",
		zap.Int("completed", stats.Completed),
		zap.Int("failed", stats.Failed),
		zap.Int("peak_concurrency", stats.Peak),
	)
}

func selectPostings(ctx context.Context, a *appContext, ids []string, all bool) ([]*model.JobPosting, error) {
	if len(ids) == 0 {
		return a.store.List(ctx, !all)
	}

	postings := make([]*model.JobPosting, 0, len(ids))
	for _, id := range ids {
		p, err := a.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	return postings, nil
}

func printSummary(postings []*model.JobPosting) {
	for _, p := range postings {
		record := p.ExtractedRequirements()
		status := "incomplete"
		switch {
		case record.IsValid():
			status = "valid"
		case record != nil:
			status = "no core requirements"
		}
		fmt.Printf("%-36s %-22s spans=%d\n", p.ID, status, record.EvidenceSpanCount())
	}
}
