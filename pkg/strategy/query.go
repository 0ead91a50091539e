package strategy

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/graphvault/graphvault/pkg/exporter"
	"github.com/graphvault/graphvault/pkg/gateway"
	"github.com/graphvault/graphvault/pkg/graph"
)

// QueryStrategy performs a full paginated export through a gateway. The
// direct variant runs over the privileged connection; the managed variant
// runs over a restricted, tool-mediated connection supplied by the
// caller. The two differ only in which gateway they were handed.
type QueryStrategy struct {
	name string
	gw   gateway.Gateway
	exp  *exporter.Exporter
}

// NewDirect builds the privileged direct-query strategy.
func NewDirect(gw gateway.Gateway, batchSize int, logger *logrus.Logger) *QueryStrategy {
	return newQueryStrategy(MethodDirect, gw, batchSize, logger)
}

// NewManaged builds the sandboxed tool-mediated strategy.
func NewManaged(gw gateway.Gateway, batchSize int, logger *logrus.Logger) *QueryStrategy {
	return newQueryStrategy(MethodManaged, gw, batchSize, logger)
}

func newQueryStrategy(name string, gw gateway.Gateway, batchSize int, logger *logrus.Logger) *QueryStrategy {
	return &QueryStrategy{
		name: name,
		gw:   gw,
		exp:  exporter.New(gw, exporter.Config{BatchSize: batchSize, Logger: logger}),
	}
}

func (s *QueryStrategy) Name() string { return s.name }

// AttemptExport pings the store and then runs the full export. Any error
// aborts this attempt; the chain decides what happens next.
func (s *QueryStrategy) AttemptExport(ctx context.Context) (*graph.Snapshot, error) {
	if s.gw == nil {
		return nil, fmt.Errorf("%w: no gateway configured", gateway.ErrConnection)
	}
	if _, err := s.gw.Execute(ctx, gateway.QueryPing, nil); err != nil {
		return nil, fmt.Errorf("connection check: %w", err)
	}
	return s.exp.Export(ctx)
}
