package telemetry

import (
	"go.uber.org/zap"

	"github.com/spigell/job-preprocessor/internal/logger"
)

// LogSink writes lifecycle events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{logger: logger.WithFields(log, zap.String("component", "telemetry"))}
}

func (s *LogSink) OnStart(jobID, name string) {
	s.logger.Info("job started", zap.String(logger.FieldJobID, jobID), zap.String("name", name))
}

func (s *LogSink) OnPhase(jobID, phase string) {
	s.logger.Debug("job phase", zap.String(logger.FieldJobID, jobID), zap.String(logger.FieldPhase, phase))
}

func (s *LogSink) OnEvent(jobID, kind, message, detail string) {
	s.logger.Debug(message,
		zap.String(logger.FieldJobID, jobID),
		zap.String("kind", kind),
		zap.String("detail", detail),
	)
}

func (s *LogSink) OnComplete(jobID string) {
	s.logger.Info("job completed", zap.String(logger.FieldJobID, jobID))
}

func (s *LogSink) OnFail(jobID, reason string) {
	s.logger.Warn("job failed", zap.String(logger.FieldJobID, jobID), zap.String("reason", reason))
}
