package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultStream    = "job-preprocessor:activity"
	defaultMaxLen    = 10000
	defaultPublishTO = 2 * time.Second
)

// Event types written to the stream.
const (
	EventStart    = "start"
	EventPhase    = "phase"
	EventEvent    = "event"
	EventComplete = "complete"
	EventFail     = "fail"
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisSink appends every lifecycle event to a capped Redis stream.
type RedisSink struct {
	client  streamAdder
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// RedisOptions configures NewRedisSink.
type RedisOptions struct {
	Stream string
	MaxLen int64
	Logger *zap.Logger
}

func NewRedisSink(client streamAdder, opts RedisOptions) *RedisSink {
	stream := strings.TrimSpace(opts.Stream)
	if stream == "" {
		stream = DefaultStream
	}
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &RedisSink{
		client:  client,
		stream:  stream,
		maxLen:  maxLen,
		timeout: defaultPublishTO,
		logger:  log,
		now:     time.Now,
	}
}

// NewRedisClient builds a client from either a redis:// URL or a host:port address.
func NewRedisClient(addr string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}

	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

func (s *RedisSink) OnStart(jobID, name string) {
	s.publish(jobID, EventStart, map[string]any{"name": name})
}

func (s *RedisSink) OnPhase(jobID, phase string) {
	s.publish(jobID, EventPhase, map[string]any{"phase": phase})
}

func (s *RedisSink) OnEvent(jobID, kind, message, detail string) {
	s.publish(jobID, EventEvent, map[string]any{"kind": kind, "message": message, "detail": detail})
}

func (s *RedisSink) OnComplete(jobID string) {
	s.publish(jobID, EventComplete, nil)
}

func (s *RedisSink) OnFail(jobID, reason string) {
	s.publish(jobID, EventFail, map[string]any{"reason": reason})
}

func (s *RedisSink) publish(jobID, eventType string, fields map[string]any) {
	values := map[string]any{
		"job_id": jobID,
		"type":   eventType,
		"ts":     s.now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		values[k] = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		s.logger.Warn("failed to publish telemetry event",
			zap.String("stream", s.stream),
			zap.String("job_id", jobID),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}
