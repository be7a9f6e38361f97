// Package requirements encodes and decodes persisted ExtractedRequirements records.
//
// Every record is written with a schemaVersion tag and the full current field set.
// Reading dispatches on the tag: each known version has its own JSON Schema and
// decode path, and the decoded value is upgraded to the current shape. Records
// written before the tag existed are read through a tolerant path where every
// field added after the first release may be missing.
package requirements

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/job-preprocessor/internal/model"
	"github.com/spigell/job-preprocessor/internal/schemas"
)

// Version identifies a persisted record layout.
type Version int

const (
	// VersionUntagged marks records persisted before schemaVersion was written.
	VersionUntagged Version = 0
	// VersionV1 carries the five tiers, extractedAt and extractionModel.
	VersionV1 Version = 1
	// VersionV2 adds matchedSkillIds and skillRecommendations.
	VersionV2 Version = 2
	// VersionV3 adds skillEvidence.
	VersionV3 Version = 3

	CurrentVersion = VersionV3
)

// ErrUnsupportedVersion is returned for records tagged with an unknown version.
var ErrUnsupportedVersion = errors.New("unsupported record schema version")

//go:embed schemas/*.json
var schemaFiles embed.FS

var versionSchemas = map[Version]*schemas.Schema{
	VersionUntagged: mustLoad("legacy.json", "requirements(untagged)"),
	VersionV1:       mustLoad("v1.json", "requirements(v1)"),
	VersionV2:       mustLoad("v2.json", "requirements(v2)"),
	VersionV3:       mustLoad("v3.json", "requirements(v3)"),
}

func mustLoad(file, name string) *schemas.Schema {
	data, err := schemaFiles.ReadFile("schemas/" + file)
	if err != nil {
		panic(fmt.Sprintf("requirements: missing embedded schema %s: %v", file, err))
	}
	return schemas.MustCompile(name, string(data))
}

type tiers struct {
	MustHave     []string  `json:"mustHave"`
	StrongSignal []string  `json:"strongSignal"`
	Preferred    []string  `json:"preferred"`
	Cultural     []string  `json:"cultural"`
	ATSKeywords  []string  `json:"atsKeywords"`
	ExtractedAt  time.Time `json:"extractedAt"`
}

type recordUntagged struct {
	tiers
	ExtractionModel      *string                     `json:"extractionModel"`
	MatchedSkillIDs      []string                    `json:"matchedSkillIds"`
	SkillRecommendations []model.SkillRecommendation `json:"skillRecommendations"`
	SkillEvidence        []model.JobSkillEvidence    `json:"skillEvidence"`
}

type recordV1 struct {
	tiers
	ExtractionModel string `json:"extractionModel"`
}

type recordV2 struct {
	recordV1
	MatchedSkillIDs      []string                    `json:"matchedSkillIds"`
	SkillRecommendations []model.SkillRecommendation `json:"skillRecommendations"`
}

type recordV3 struct {
	recordV2
	SkillEvidence []model.JobSkillEvidence `json:"skillEvidence"`
}

type envelope struct {
	SchemaVersion *int `json:"schemaVersion"`
}

// wireRecord is the layout written by Encode.
type wireRecord struct {
	SchemaVersion Version `json:"schemaVersion"`
	*model.ExtractedRequirements
}

// Encode serializes r with the current schema version and every field present.
func Encode(r *model.ExtractedRequirements) ([]byte, error) {
	if r == nil {
		return nil, errors.New("encode requirements: nil record")
	}
	out := normalized(r)
	data, err := json.Marshal(wireRecord{SchemaVersion: CurrentVersion, ExtractedRequirements: out})
	if err != nil {
		return nil, fmt.Errorf("encode requirements: %w", err)
	}
	return data, nil
}

// Decode reads a record of any known version and returns it in the current shape.
func Decode(data []byte) (*model.ExtractedRequirements, error) {
	version, err := DetectVersion(data)
	if err != nil {
		return nil, err
	}

	schema, ok := versionSchemas[version]
	if !ok {
		return nil, fmt.Errorf("decode requirements: %w: %d", ErrUnsupportedVersion, version)
	}
	if err := schema.ValidateBytes(data); err != nil {
		return nil, fmt.Errorf("decode requirements: %w", err)
	}

	var rec *model.ExtractedRequirements
	switch version {
	case VersionUntagged:
		rec, err = decodeUntagged(data)
	case VersionV1:
		rec, err = decodeV1(data)
	case VersionV2:
		rec, err = decodeV2(data)
	default:
		rec, err = decodeV3(data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode requirements v%d: %w", version, err)
	}

	return normalized(rec), nil
}

// DetectVersion reads only the schemaVersion tag.
func DetectVersion(data []byte) (Version, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("decode requirements: %w", err)
	}
	if env.SchemaVersion == nil {
		return VersionUntagged, nil
	}
	v := Version(*env.SchemaVersion)
	if v < VersionV1 || v > CurrentVersion {
		return v, fmt.Errorf("decode requirements: %w: %d", ErrUnsupportedVersion, v)
	}
	return v, nil
}

func decodeUntagged(data []byte) (*model.ExtractedRequirements, error) {
	var r recordUntagged
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	rec := fromTiers(r.tiers)
	if r.ExtractionModel != nil {
		rec.ExtractionModel = *r.ExtractionModel
	}
	rec.MatchedSkillIDs = r.MatchedSkillIDs
	rec.SkillRecommendations = r.SkillRecommendations
	rec.SkillEvidence = r.SkillEvidence
	return rec, nil
}

func decodeV1(data []byte) (*model.ExtractedRequirements, error) {
	var r recordV1
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return upgradeV1(r), nil
}

func decodeV2(data []byte) (*model.ExtractedRequirements, error) {
	var r recordV2
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return upgradeV2(r), nil
}

func decodeV3(data []byte) (*model.ExtractedRequirements, error) {
	var r recordV3
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	rec := upgradeV2(r.recordV2)
	rec.SkillEvidence = r.SkillEvidence
	return rec, nil
}

func upgradeV1(r recordV1) *model.ExtractedRequirements {
	rec := fromTiers(r.tiers)
	rec.ExtractionModel = r.ExtractionModel
	return rec
}

func upgradeV2(r recordV2) *model.ExtractedRequirements {
	rec := upgradeV1(r.recordV1)
	rec.MatchedSkillIDs = r.MatchedSkillIDs
	rec.SkillRecommendations = r.SkillRecommendations
	return rec
}

func fromTiers(t tiers) *model.ExtractedRequirements {
	return &model.ExtractedRequirements{
		MustHave:     t.MustHave,
		StrongSignal: t.StrongSignal,
		Preferred:    t.Preferred,
		Cultural:     t.Cultural,
		ATSKeywords:  t.ATSKeywords,
		ExtractedAt:  t.ExtractedAt,
	}
}

// normalized returns a copy of r where every collection is non-nil, so that
// encoding never writes null and callers never see nil slices.
func normalized(r *model.ExtractedRequirements) *model.ExtractedRequirements {
	out := *r
	out.MustHave = orEmpty(r.MustHave)
	out.StrongSignal = orEmpty(r.StrongSignal)
	out.Preferred = orEmpty(r.Preferred)
	out.Cultural = orEmpty(r.Cultural)
	out.ATSKeywords = orEmpty(r.ATSKeywords)
	out.MatchedSkillIDs = orEmpty(r.MatchedSkillIDs)

	out.SkillRecommendations = make([]model.SkillRecommendation, 0, len(r.SkillRecommendations))
	for _, rec := range r.SkillRecommendations {
		rec.RelatedUserSkills = orEmpty(rec.RelatedUserSkills)
		rec.SourceCardIDs = orEmpty(rec.SourceCardIDs)
		out.SkillRecommendations = append(out.SkillRecommendations, rec)
	}

	out.SkillEvidence = make([]model.JobSkillEvidence, 0, len(r.SkillEvidence))
	for _, ev := range r.SkillEvidence {
		if ev.EvidenceSpans == nil {
			ev.EvidenceSpans = []model.TextSpan{}
		}
		out.SkillEvidence = append(out.SkillEvidence, ev)
	}

	return &out
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
