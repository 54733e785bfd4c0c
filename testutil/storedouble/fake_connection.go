// Package storedouble provides a scripted Connection implementation for
// testing store behavior without a running SPARQL endpoint. Query results
// are queued up front; every statement and transaction action is recorded
// so tests can assert the emitted protocol.
package storedouble

import (
	"context"
	"errors"

	"github.com/graphadm/entitystore-go/entitystore"
)

// RecordedUpdate is one update statement the connection received.
type RecordedUpdate struct {
	InTransaction bool
	Body          string
}

// FakeConnection implements entitystore.Connection against scripted results.
type FakeConnection struct {
	actor   entitystore.Actor
	results []entitystore.ResultSet

	Queries []string
	Updates []RecordedUpdate
	TxOps   []string

	// OnQuery answers queries once the scripted results are exhausted, for
	// answers that depend on what the store wrote earlier in the test.
	OnQuery func(query string) entitystore.ResultSet

	QueryErr  error
	UpdateErr error
	CommitErr error

	inTx bool
}

func NewFakeConnection(actor entitystore.Actor) *FakeConnection {
	return &FakeConnection{actor: actor}
}

// QueueResult appends a result set to the script; each query consumes one.
// Queries beyond the script return an empty result.
func (c *FakeConnection) QueueResult(rs entitystore.ResultSet) {
	c.results = append(c.results, rs)
}

func (c *FakeConnection) Actor() entitystore.Actor {
	return c.actor
}

func (c *FakeConnection) InTransaction() bool {
	return c.inTx
}

func (c *FakeConnection) Query(_ context.Context, query string) (entitystore.ResultSet, error) {
	c.Queries = append(c.Queries, query)
	if c.QueryErr != nil {
		return entitystore.ResultSet{}, c.QueryErr
	}

	return c.nextResult(), nil
}

func (c *FakeConnection) Update(_ context.Context, update string) error {
	c.Updates = append(c.Updates, RecordedUpdate{InTransaction: false, Body: update})
	return c.UpdateErr
}

func (c *FakeConnection) TransactionStart(_ context.Context) error {
	if c.inTx {
		return errors.New("transaction already running")
	}
	c.inTx = true
	c.TxOps = append(c.TxOps, "start")

	return nil
}

func (c *FakeConnection) TransactionQuery(ctx context.Context, query string) (entitystore.ResultSet, error) {
	if !c.inTx {
		return entitystore.ResultSet{}, errors.New("no transaction running")
	}

	return c.Query(ctx, query)
}

func (c *FakeConnection) TransactionUpdate(_ context.Context, update string) error {
	if !c.inTx {
		return errors.New("no transaction running")
	}
	c.Updates = append(c.Updates, RecordedUpdate{InTransaction: true, Body: update})

	return c.UpdateErr
}

func (c *FakeConnection) TransactionCommit(_ context.Context) error {
	if !c.inTx {
		return errors.New("no transaction running")
	}
	c.inTx = false
	c.TxOps = append(c.TxOps, "commit")

	return c.CommitErr
}

func (c *FakeConnection) TransactionAbort(_ context.Context) error {
	if !c.inTx {
		return errors.New("no transaction running")
	}
	c.inTx = false
	c.TxOps = append(c.TxOps, "abort")

	return nil
}

func (c *FakeConnection) nextResult() entitystore.ResultSet {
	if len(c.results) == 0 {
		if c.OnQuery != nil {
			return c.OnQuery(c.Queries[len(c.Queries)-1])
		}
		return entitystore.ResultSet{}
	}
	rs := c.results[0]
	c.results = c.results[1:]

	return rs
}

var _ entitystore.Connection = (*FakeConnection)(nil)
