// Package repo maps Neo4j nodes of one label to a Go type. Reads run in
// managed read transactions; Replace swaps the whole label in a single
// write transaction so readers never see a half-loaded set.
package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Codec converts between T and node properties.
type Codec[T any] struct {
	Encode func(T) map[string]any
	Decode func(*neo4j.Record) (T, error)
}

type cursor interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

type tx interface {
	Run(ctx context.Context, cypher string, params map[string]any) (cursor, error)
}

type session interface {
	read(ctx context.Context, work func(tx) error) error
	write(ctx context.Context, work func(tx) error) error
	Close(ctx context.Context) error
}

type settings struct {
	database string
	seqKey   string
}

type Option func(*settings)

// WithDatabase selects a database other than the server default.
func WithDatabase(name string) Option { return func(s *settings) { s.database = name } }

// WithSeqKey names the property Replace uses to record insertion order.
// The default is "seq".
func WithSeqKey(key string) Option { return func(s *settings) { s.seqKey = key } }

// Nodes is a repository of nodes labelled label.
type Nodes[T any] struct {
	label string
	codec Codec[T]
	opts  settings
	open  func(ctx context.Context) session
}

func NewNodes[T any](driver neo4j.DriverWithContext, label string, codec Codec[T], opts ...Option) *Nodes[T] {
	n := &Nodes[T]{label: label, codec: codec, opts: settings{seqKey: "seq"}}
	for _, o := range opts {
		o(&n.opts)
	}
	n.open = func(ctx context.Context) session {
		return driverSession{driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.opts.database})}
	}
	return n
}

func (n *Nodes[T]) Label() string  { return n.label }
func (n *Nodes[T]) SeqKey() string { return n.opts.seqKey }

// Query runs cypher in a read transaction and decodes every record.
func (n *Nodes[T]) Query(ctx context.Context, cypher string, params map[string]any) ([]T, error) {
	sess := n.open(ctx)
	defer sess.Close(ctx)

	var out []T
	err := sess.read(ctx, func(t tx) error {
		out = out[:0]
		cur, err := t.Run(ctx, cypher, params)
		if err != nil {
			return err
		}
		for cur.Next(ctx) {
			v, err := n.codec.Decode(cur.Record())
			if err != nil {
				return fmt.Errorf("decode %s: %w", n.label, err)
			}
			out = append(out, v)
		}
		return cur.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("repo: query %s: %w", n.label, err)
	}
	return out, nil
}

// Replace deletes every node with the label and creates one per item, in
// one transaction. Each node gets its index in items under the seq key.
func (n *Nodes[T]) Replace(ctx context.Context, items []T) (int, error) {
	rows := make([]any, len(items))
	for i, it := range items {
		props := n.codec.Encode(it)
		props[n.opts.seqKey] = i
		rows[i] = props
	}

	sess := n.open(ctx)
	defer sess.Close(ctx)

	err := sess.write(ctx, func(t tx) error {
		if err := exec(ctx, t, fmt.Sprintf("MATCH (x:%s) DETACH DELETE x", n.label), nil); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		create := fmt.Sprintf("UNWIND $rows AS row CREATE (x:%s) SET x = row", n.label)
		if err := exec(ctx, t, create, map[string]any{"rows": rows}); err != nil {
			return fmt.Errorf("create: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("repo: replace %s: %w", n.label, err)
	}
	return len(items), nil
}

func exec(ctx context.Context, t tx, cypher string, params map[string]any) error {
	cur, err := t.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	return cur.Err()
}

type driverSession struct{ s neo4j.SessionWithContext }

func (d driverSession) read(ctx context.Context, work func(tx) error) error {
	_, err := d.s.ExecuteRead(ctx, func(t neo4j.ManagedTransaction) (any, error) {
		return nil, work(managedTx{t})
	})
	return err
}

func (d driverSession) write(ctx context.Context, work func(tx) error) error {
	_, err := d.s.ExecuteWrite(ctx, func(t neo4j.ManagedTransaction) (any, error) {
		return nil, work(managedTx{t})
	})
	return err
}

func (d driverSession) Close(ctx context.Context) error { return d.s.Close(ctx) }

type managedTx struct{ t neo4j.ManagedTransaction }

func (m managedTx) Run(ctx context.Context, cypher string, params map[string]any) (cursor, error) {
	return m.t.Run(ctx, cypher, params)
}
