package pipeline

import (
	"strings"

	"github.com/spigell/job-preprocessor/internal/evidence"
	"github.com/spigell/job-preprocessor/internal/model"
)

// keepKnown returns the trimmed ids that appear in known, without duplicates, in
// the order the model returned them.
func keepKnown(ids, known []string) []string {
	allowed := make(map[string]struct{}, len(known))
	for _, k := range known {
		allowed[k] = struct{}{}
	}

	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := allowed[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func relevantCards(cards []model.KnowledgeCard, ids []string) []model.KnowledgeCard {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	out := make([]model.KnowledgeCard, 0, len(ids))
	for _, c := range cards {
		if _, ok := wanted[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func recommendations(in []recommendationResponse) []model.SkillRecommendation {
	out := make([]model.SkillRecommendation, 0, len(in))
	for _, r := range in {
		name := strings.TrimSpace(r.SkillName)
		if name == "" {
			continue
		}
		out = append(out, model.SkillRecommendation{
			SkillName:         name,
			Category:          strings.TrimSpace(r.Category),
			Confidence:        model.ParseConfidence(r.Confidence),
			Reason:            strings.TrimSpace(r.Reason),
			RelatedUserSkills: nonNil(r.RelatedUserSkills),
			SourceCardIDs:     nonNil(r.SourceCardIDs),
		})
	}
	return out
}

// locateEvidence converts the snippets of each entry into spans of source. A
// snippet that is not in source contributes nothing.
func locateEvidence(in []evidenceResponse, source string, skillIDs []string) []model.JobSkillEvidence {
	known := make(map[string]struct{}, len(skillIDs))
	for _, id := range skillIDs {
		known[id] = struct{}{}
	}

	out := make([]model.JobSkillEvidence, 0, len(in))
	for _, e := range in {
		name := strings.TrimSpace(e.SkillName)
		if name == "" {
			continue
		}

		category, ok := model.ParseEvidenceCategory(e.Category)
		if !ok {
			category = model.EvidenceUnmatched
		}

		ev := model.JobSkillEvidence{
			SkillName:     name,
			Category:      category,
			EvidenceSpans: evidence.LocateAll(e.EvidenceTexts, source),
		}

		if category == model.EvidenceMatched && e.MatchedSkillID != nil {
			id := strings.TrimSpace(*e.MatchedSkillID)
			if _, ok := known[id]; ok {
				ev.MatchedSkillID = &id
			}
		}

		out = append(out, ev)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
