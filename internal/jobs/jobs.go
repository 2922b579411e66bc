// Package jobs submits background work to Redis-backed worker queues.
// Submission is fire-and-forget from the caller's perspective; workers
// consume the lists out of process.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job types produced by the gateway.
const (
	TypeSnippetGenerate = "snippet.generate"
	TypeLinksRebuild    = "links.rebuild"
	TypeQueueRefill     = "queue.refill"
)

// Queue priorities. Each priority maps to its own Redis list.
const (
	PriorityHigh    = "high"
	PriorityDefault = "default"
	PriorityLow     = "low"
)

const defaultMaxAttempts = 3

// Options control job placement and worker retry behavior.
type Options struct {
	Priority    string
	MaxAttempts int
}

// Envelope is the wire format pushed onto the job list.
type Envelope struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Payload     any       `json:"payload"`
	MaxAttempts int       `json:"max_attempts"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Submitter enqueues job envelopes onto per-priority Redis lists.
type Submitter struct {
	rdb    redis.Cmdable
	logger *slog.Logger
	now    func() time.Time
}

func NewSubmitter(rdb redis.Cmdable, logger *slog.Logger) *Submitter {
	return &Submitter{rdb: rdb, logger: logger, now: time.Now}
}

// Enqueue pushes a job onto the list for its priority (jobs:<priority>).
func (s *Submitter) Enqueue(ctx context.Context, jobType string, payload any, opts Options) error {
	if opts.Priority == "" {
		opts.Priority = PriorityDefault
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	env := Envelope{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     payload,
		MaxAttempts: opts.MaxAttempts,
		EnqueuedAt:  s.now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s job: %w", jobType, err)
	}

	if err := s.rdb.LPush(ctx, ListKey(opts.Priority), data).Err(); err != nil {
		return fmt.Errorf("enqueue %s job: %w", jobType, err)
	}

	s.logger.Debug("job enqueued",
		slog.String("job_id", env.ID),
		slog.String("type", jobType),
		slog.String("priority", opts.Priority),
	)
	return nil
}

// ListKey returns the Redis list name for a priority.
func ListKey(priority string) string {
	return "jobs:" + priority
}
