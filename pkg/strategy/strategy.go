// Package strategy orders the snapshot acquisition methods and falls
// through them until one produces a result. It is the only place in the
// engine that recovers from failure; everything below it surfaces errors
// untouched.
package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/graphvault/graphvault/pkg/graph"
)

// Strategy identifiers recorded into the archive manifest and the ledger.
const (
	MethodDirect  = "direct"
	MethodManaged = "managed"
	MethodMinimal = "minimal"
)

// Strategy is one way of acquiring a snapshot. An attempt is atomic at
// the strategy level: there is no partial retry inside one attempt.
type Strategy interface {
	Name() string
	AttemptExport(ctx context.Context) (*graph.Snapshot, error)
}

// Attempt records one failed strategy attempt for reporting.
type Attempt struct {
	Strategy string
	Err      error
}

// ExhaustedError is returned when every strategy in the chain failed. It
// reports which strategies were attempted and why each one failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("all acquisition strategies failed:")
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, " [%s: %v]", a.Strategy, a.Err)
	}
	return b.String()
}

// Chain tries strategies in priority order.
type Chain struct {
	strategies []Strategy
	log        *logrus.Logger
}

// NewChain builds a chain. Order is priority order.
func NewChain(logger *logrus.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = logrus.New()
	}
	return &Chain{strategies: strategies, log: logger}
}

// Run attempts each strategy until one yields a snapshot. The name of the
// successful strategy is returned so it can be recorded as the archive's
// method. Cancellation stops the chain between attempts.
func (c *Chain) Run(ctx context.Context) (*graph.Snapshot, string, error) {
	var attempts []Attempt

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", fmt.Errorf("acquisition cancelled: %w", err)
		}

		c.log.WithField("strategy", s.Name()).Info("attempting export")

		snap, err := s.AttemptExport(ctx)
		if err != nil {
			c.log.WithFields(logrus.Fields{
				"strategy": s.Name(),
				"error":    err.Error(),
			}).Warn("strategy failed, advancing")
			attempts = append(attempts, Attempt{Strategy: s.Name(), Err: err})
			continue
		}

		return snap, s.Name(), nil
	}

	return nil, "", &ExhaustedError{Attempts: attempts}
}
