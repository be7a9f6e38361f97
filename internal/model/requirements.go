package model

import (
	"strings"
	"time"
)

// TextSpan is a character range [Start, End) of a source text. Offsets count
// Unicode code points, and Text keeps the casing found in the source.
type TextSpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Len returns the span length in characters.
func (s TextSpan) Len() int { return s.End - s.Start }

// Slice returns the part of source covered by the span, or "" when the span
// does not fit inside source.
func (s TextSpan) Slice(source string) string {
	runes := []rune(source)
	if s.Start < 0 || s.End > len(runes) || s.Start > s.End {
		return ""
	}
	return string(runes[s.Start:s.End])
}

// EvidenceCategory tells how a job skill relates to the user's inventory.
type EvidenceCategory string

const (
	EvidenceMatched     EvidenceCategory = "matched"
	EvidenceRecommended EvidenceCategory = "recommended"
	EvidenceUnmatched   EvidenceCategory = "unmatched"
)

// ParseEvidenceCategory maps free-form input onto a known category.
func ParseEvidenceCategory(s string) (EvidenceCategory, bool) {
	switch c := EvidenceCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case EvidenceMatched, EvidenceRecommended, EvidenceUnmatched:
		return c, true
	default:
		return "", false
	}
}

// JobSkillEvidence ties a skill mentioned by the posting to its text spans.
// MatchedSkillID is only set for the matched category.
type JobSkillEvidence struct {
	SkillName      string           `json:"skillName"`
	Category       EvidenceCategory `json:"category"`
	EvidenceSpans  []TextSpan       `json:"evidenceSpans"`
	MatchedSkillID *string          `json:"matchedSkillId,omitempty"`
}

// Confidence of a skill recommendation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence normalizes s, falling back to low for unknown values.
func ParseConfidence(s string) Confidence {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c
	default:
		return ConfidenceLow
	}
}

// SkillRecommendation is a skill the user likely has but has not listed.
type SkillRecommendation struct {
	SkillName         string     `json:"skillName"`
	Category          string     `json:"category"`
	Confidence        Confidence `json:"confidence"`
	Reason            string     `json:"reason"`
	RelatedUserSkills []string   `json:"relatedUserSkills"`
	SourceCardIDs     []string   `json:"sourceCardIds"`
}

// ExtractedRequirements is the result of one successful preprocessing run. A new
// run replaces it as a whole.
type ExtractedRequirements struct {
	MustHave     []string `json:"mustHave"`
	StrongSignal []string `json:"strongSignal"`
	Preferred    []string `json:"preferred"`
	Cultural     []string `json:"cultural"`
	ATSKeywords  []string `json:"atsKeywords"`

	ExtractedAt     time.Time `json:"extractedAt"`
	ExtractionModel string    `json:"extractionModel"`

	MatchedSkillIDs      []string              `json:"matchedSkillIds"`
	SkillRecommendations []SkillRecommendation `json:"skillRecommendations"`
	SkillEvidence        []JobSkillEvidence    `json:"skillEvidence"`
}

// IsValid reports whether the record carries at least one top-tier requirement.
func (r *ExtractedRequirements) IsValid() bool {
	if r == nil {
		return false
	}
	return len(r.MustHave) > 0 || len(r.StrongSignal) > 0
}

// EvidenceSpanCount returns the number of spans over all skill evidence entries.
func (r *ExtractedRequirements) EvidenceSpanCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, e := range r.SkillEvidence {
		n += len(e.EvidenceSpans)
	}
	return n
}
