package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
	// FieldJobID identifies one scheduled preprocessing job.
	FieldJobID = "job_id"
	// FieldPostingID identifies the job posting a job works on.
	FieldPostingID = "posting_id"
	// FieldPhase names the extraction phase (requirements, skills).
	FieldPhase = "phase"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger, falling back to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns the fields describing the AI provider and model.
// Empty values are skipped.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the common AI fields to the provided logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// WithJobFields attaches the job and posting identifiers to logger.
func WithJobFields(logger *zap.Logger, jobID, postingID string) *zap.Logger {
	return WithFields(logger, StringFields(
		StringField{Key: FieldJobID, Value: jobID},
		StringField{Key: FieldPostingID, Value: postingID},
	)...)
}

// WithPhase attaches the extraction phase to logger.
func WithPhase(logger *zap.Logger, phase string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldPhase, Value: phase})...)
}
