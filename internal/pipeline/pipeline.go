// Package pipeline runs the two phase extraction for a single job posting:
// requirement tiers and relevant cards first, then, when the user has skills,
// skill matching with text evidence located in the posting.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/job-preprocessor/internal/ai"
	"github.com/spigell/job-preprocessor/internal/inventory"
	"github.com/spigell/job-preprocessor/internal/logger"
	"github.com/spigell/job-preprocessor/internal/model"
	"github.com/spigell/job-preprocessor/internal/telemetry"
	"github.com/spigell/job-preprocessor/internal/utils"
)

// JobType is the ai.models key holding the model used by the pipeline.
const JobType = "job-preprocessing"

const (
	PhaseRequirements = "requirements"
	PhaseSkills       = "skills"

	EventPhase2Skipped = "phase2_skipped"
	EventEvidence      = "evidence"
)

var (
	//go:embed prompts/phase1.md
	phase1Prompt string
	//go:embed prompts/phase2.md
	phase2Prompt string
	//go:embed prompts/phase1.json
	phase1Schema string
	//go:embed prompts/phase2.json
	phase2Schema string
)

// Saver durably commits a posting after its result was written.
type Saver interface {
	Save(ctx context.Context, posting *model.JobPosting) error
}

// Config carries the model settings for the pipeline.
type Config struct {
	// Models maps job types to model ids.
	Models      map[string]string
	Temperature float64
	Backend     ai.Backend
	Provider    string
}

// Deps are the collaborators of a Pipeline. Skills, Saver and Sink may be nil.
type Deps struct {
	Completer ai.Completer
	Skills    inventory.Skills
	Saver     Saver
	Sink      telemetry.Sink
	Logger    *zap.Logger
}

type Pipeline struct {
	completer ai.Completer
	skills    inventory.Skills
	saver     Saver
	sink      telemetry.Sink
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func New(deps Deps, cfg Config) *Pipeline {
	sink := deps.Sink
	if sink == nil {
		sink = telemetry.Nop{}
	}
	skills := deps.Skills
	if skills == nil {
		skills = inventory.Static(nil)
	}

	return &Pipeline{
		completer: deps.Completer,
		skills:    skills,
		saver:     deps.Saver,
		sink:      sink,
		cfg:       cfg,
		logger:    logger.WithFields(deps.Logger, zap.String("component", "pipeline")),
		now:       time.Now,
	}
}

// Run preprocesses posting. On success the result and the relevant card ids are
// written onto posting in one step and the posting is saved; a save failure is
// only logged. On failure posting is left untouched.
func (p *Pipeline) Run(ctx context.Context, jobID string, posting *model.JobPosting, cards []model.KnowledgeCard) error {
	if posting == nil {
		return errors.New("posting is required")
	}

	log := logger.WithJobFields(p.logger, jobID, posting.ID)
	p.sink.OnStart(jobID, "Preprocess "+posting.ID)

	record, cardIDs, err := p.extract(ctx, log, jobID, posting, cards)
	if err != nil {
		p.sink.OnFail(jobID, fmt.Sprintf("%s: %v", ai.KindOf(err), err))
		return fmt.Errorf("preprocess posting %s: %w", posting.ID, err)
	}

	posting.SetPreprocessed(record, cardIDs)

	if p.saver != nil {
		if err := p.saver.Save(ctx, posting); err != nil {
			log.Error("failed to persist preprocessing result", zap.Error(err))
		}
	}

	log.Info("posting preprocessed",
		zap.Bool("valid", record.IsValid()),
		zap.Int("must_have", len(record.MustHave)),
		zap.Int("ats_keywords", len(record.ATSKeywords)),
		zap.Int("relevant_cards", len(cardIDs)),
		zap.Int("matched_skills", len(record.MatchedSkillIDs)),
		zap.Int("evidence_spans", record.EvidenceSpanCount()),
	)
	p.sink.OnComplete(jobID)

	return nil
}

func (p *Pipeline) extract(ctx context.Context, log *zap.Logger, jobID string, posting *model.JobPosting, cards []model.KnowledgeCard) (*model.ExtractedRequirements, []string, error) {
	modelID, ok := p.model()
	if !ok {
		return nil, nil, ai.NewError(ai.KindMisconfiguration, PhaseRequirements, fmt.Errorf("no model configured for %s", JobType))
	}
	log = logger.WithFields(log, logger.CommonFields(p.cfg.Provider, modelID)...)

	p.sink.OnPhase(jobID, PhaseRequirements)
	found, err := p.requirements(ctx, logger.WithPhase(log, PhaseRequirements), posting, cards, modelID)
	if err != nil {
		return nil, nil, err
	}

	record := &model.ExtractedRequirements{
		MustHave:             utils.Dedupe(found.MustHave),
		StrongSignal:         utils.Dedupe(found.StrongSignal),
		Preferred:            utils.Dedupe(found.Preferred),
		Cultural:             utils.Dedupe(found.Cultural),
		ATSKeywords:          utils.Dedupe(found.ATSKeywords),
		ExtractedAt:          p.now().UTC(),
		ExtractionModel:      modelID,
		MatchedSkillIDs:      []string{},
		SkillRecommendations: []model.SkillRecommendation{},
		SkillEvidence:        []model.JobSkillEvidence{},
	}
	cardIDs := keepKnown(found.RelevantCardIDs, model.CardIDs(cards))

	// The snapshot is taken here, after phase one, so a long first call still
	// sees the latest inventory.
	skills, err := p.skills.Skills(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read skill inventory: %w", err)
	}
	if len(skills) == 0 {
		log.Debug("skill inventory is empty, skipping skill matching")
		p.sink.OnEvent(jobID, EventPhase2Skipped, "skill inventory is empty", "")
		return record, cardIDs, nil
	}

	p.sink.OnPhase(jobID, PhaseSkills)
	matched, err := p.matchSkills(ctx, logger.WithPhase(log, PhaseSkills), posting, record.ATSKeywords, skills, relevantCards(cards, cardIDs), modelID)
	if err != nil {
		return nil, nil, err
	}

	skillIDs := make([]string, 0, len(skills))
	for _, s := range skills {
		skillIDs = append(skillIDs, s.ID)
	}

	record.MatchedSkillIDs = keepKnown(matched.MatchedSkillIDs, skillIDs)
	record.SkillRecommendations = recommendations(matched.SkillRecommendations)
	record.SkillEvidence = locateEvidence(matched.SkillEvidence, posting.Description, skillIDs)

	p.sink.OnEvent(jobID, EventEvidence,
		fmt.Sprintf("located %d evidence spans", record.EvidenceSpanCount()),
		fmt.Sprintf("skills=%d", len(record.SkillEvidence)),
	)

	return record, cardIDs, nil
}

func (p *Pipeline) model() (string, bool) {
	id := strings.TrimSpace(p.cfg.Models[JobType])
	return id, id != ""
}

type requirementsResponse struct {
	MustHave        []string `json:"must_have"`
	StrongSignal    []string `json:"strong_signal"`
	Preferred       []string `json:"preferred"`
	Cultural        []string `json:"cultural"`
	ATSKeywords     []string `json:"ats_keywords"`
	RelevantCardIDs []string `json:"relevant_card_ids"`
}

func (p *Pipeline) requirements(ctx context.Context, log *zap.Logger, posting *model.JobPosting, cards []model.KnowledgeCard, modelID string) (requirementsResponse, error) {
	if cards == nil {
		cards = []model.KnowledgeCard{}
	}
	cardsJSON, err := json.MarshalIndent(cards, "", "  ")
	if err != nil {
		return requirementsResponse{}, fmt.Errorf("marshal cards payload: %w", err)
	}

	prompt := render(phase1Prompt, map[string]string{
		"DESCRIPTION": posting.Description,
		"CARDS_JSON":  string(cardsJSON),
	})

	log.Debug("extracting requirements", zap.Int("cards", len(cards)))

	return ai.ExecuteInto[requirementsResponse](ctx, p.completer, p.request(PhaseRequirements, prompt, modelID, phase1Schema))
}

type skillsResponse struct {
	MatchedSkillIDs      []string                 `json:"matched_skill_ids"`
	SkillRecommendations []recommendationResponse `json:"skill_recommendations"`
	SkillEvidence        []evidenceResponse       `json:"skill_evidence"`
}

type recommendationResponse struct {
	SkillName         string   `json:"skill_name"`
	Category          string   `json:"category"`
	Confidence        string   `json:"confidence"`
	Reason            string   `json:"reason"`
	RelatedUserSkills []string `json:"related_user_skills"`
	SourceCardIDs     []string `json:"source_card_ids"`
}

type evidenceResponse struct {
	SkillName      string   `json:"skill_name"`
	Category       string   `json:"category"`
	EvidenceTexts  []string `json:"evidence_texts"`
	MatchedSkillID *string  `json:"matched_skill_id"`
}

func (p *Pipeline) matchSkills(ctx context.Context, log *zap.Logger, posting *model.JobPosting, keywords []string, skills []model.Skill, cards []model.KnowledgeCard, modelID string) (skillsResponse, error) {
	payloads := make(map[string]string, 3)
	for key, v := range map[string]any{
		"KEYWORDS_JSON": keywords,
		"SKILLS_JSON":   skills,
		"CARDS_JSON":    cards,
	} {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return skillsResponse{}, fmt.Errorf("marshal %s payload: %w", strings.ToLower(key), err)
		}
		payloads[key] = string(data)
	}
	payloads["DESCRIPTION"] = posting.Description

	log.Debug("matching skills",
		zap.Int("keywords", len(keywords)),
		zap.Int("skills", len(skills)),
		zap.Int("cards", len(cards)),
	)

	return ai.ExecuteInto[skillsResponse](ctx, p.completer, p.request(PhaseSkills, render(phase2Prompt, payloads), modelID, phase2Schema))
}

func (p *Pipeline) request(name, prompt, modelID, schema string) ai.Request {
	return ai.Request{
		Name:        name,
		Prompt:      prompt,
		Model:       modelID,
		Schema:      ai.Schema{Name: name, JSON: schema},
		Temperature: p.cfg.Temperature,
		Backend:     p.cfg.Backend,
	}
}

func render(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
