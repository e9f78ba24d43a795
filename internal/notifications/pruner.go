package notifications

import (
	"context"
	"log/slog"
	"strings"

	"github.com/eternisai/report-notifier/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Severity says whether a per-token failure condemns the token.
type Severity int

const (
	// SeverityTransient failures leave the token in place; it may recover.
	SeverityTransient Severity = iota
	// SeverityPermanent failures mean the token will never work again.
	SeverityPermanent
)

func (s Severity) String() string {
	if s == SeverityPermanent {
		return "permanent"
	}
	return "transient"
}

// Classify maps a SendOutcome error code to a severity. Only codes known to
// mean "this token is dead" are permanent; anything unrecognized is transient.
func Classify(code string) Severity {
	switch strings.TrimPrefix(code, "messaging/") {
	case CodeUnregistered, CodeInvalidArgument:
		return SeverityPermanent
	default:
		return SeverityTransient
	}
}

// PruneResult records what a prune pass did. Callers are free to ignore it.
type PruneResult struct {
	Deleted []string
	Failed  []string
	Kept    []string
}

// Pruner removes tokens that a send reported as permanently invalid.
type Pruner struct {
	store       TokenStore
	concurrency int
	logger      *logger.Logger
}

// NewPruner creates a pruner that runs at most concurrency deletions at once.
func NewPruner(store TokenStore, concurrency int, logger *logger.Logger) *Pruner {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Pruner{
		store:       store,
		concurrency: concurrency,
		logger:      logger.WithComponent("token-pruner"),
	}
}

// Prune deletes every token whose outcome failed permanently, each at most once.
// Deletions run concurrently and are all awaited. Deletion errors are logged and
// reported in the result, never returned.
func (p *Pruner) Prune(ctx context.Context, uid string, outcomes []SendOutcome) PruneResult {
	log := p.logger.WithContext(ctx)

	var result PruneResult
	var invalid []string
	seen := make(map[string]struct{})

	for _, outcome := range outcomes {
		if outcome.Success {
			continue
		}
		if Classify(outcome.ErrorCode) == SeverityTransient {
			result.Kept = append(result.Kept, outcome.Token)
			continue
		}
		if _, dup := seen[outcome.Token]; dup {
			continue
		}
		seen[outcome.Token] = struct{}{}
		invalid = append(invalid, outcome.Token)
	}

	if len(invalid) == 0 {
		return result
	}

	errs := make([]error, len(invalid))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, token := range invalid {
		g.Go(func() error {
			errs[i] = p.store.DeleteToken(ctx, uid, token)
			return nil
		})
	}
	_ = g.Wait()

	for i, token := range invalid {
		if errs[i] != nil {
			result.Failed = append(result.Failed, token)
			log.Warn("failed to delete invalid push token",
				slog.String("user_id", uid),
				slog.String("token_prefix", tokenPrefix(token)),
				slog.String("error", errs[i].Error()))
			continue
		}
		result.Deleted = append(result.Deleted, token)
	}

	log.Info("pruned invalid push tokens",
		slog.String("user_id", uid),
		slog.Int("deleted", len(result.Deleted)),
		slog.Int("failed", len(result.Failed)),
		slog.Int("kept", len(result.Kept)))

	return result
}
