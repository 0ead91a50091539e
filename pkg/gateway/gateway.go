// Package gateway abstracts "run a query, get rows" against the graph
// store. It is the only package that talks to the live database; every
// other component consumes the Gateway interface.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConnection means the store is unreachable. The strategy chain
	// recovers from this by advancing to the next strategy; nothing below
	// it retries internally.
	ErrConnection = errors.New("gateway: graph store unreachable")

	// ErrAuth means the store rejected the credentials. Not retried.
	ErrAuth = errors.New("gateway: credentials rejected")

	// ErrQuery means the store rejected or failed the query itself.
	ErrQuery = errors.New("gateway: query failed")
)

// Record is one result row, keyed by the column aliases of the query.
type Record map[string]interface{}

// Gateway executes parameterized queries against a graph store. All
// variable data must enter through params; the only string-interpolated
// tokens permitted in query are allow-listed labels and relationship
// types (see pkg/graph.AllowList).
type Gateway interface {
	Execute(ctx context.Context, query string, params map[string]interface{}) ([]Record, error)
	Close() error
}

// Config carries the connection settings for a store-backed gateway. The
// values come from the environment or a config file, never from code.
type Config struct {
	URI      string        `yaml:"uri"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts the timeout as a duration string ("30s", "2m").
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		URI      string `yaml:"uri"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		Timeout  string `yaml:"timeout"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	c.URI = raw.URI
	c.Username = raw.Username
	c.Password = raw.Password
	c.Database = raw.Database

	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("gateway: parse timeout %q: %w", raw.Timeout, err)
		}
		c.Timeout = d
	}
	return nil
}
