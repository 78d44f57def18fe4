package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

type fakeResult struct {
	rows        []map[string]any
	isSet       bool
	updateCount int64
}

func resultSet(rows ...map[string]any) fakeResult {
	return fakeResult{rows: rows, isSet: true}
}

func updateCount(n int64) fakeResult {
	return fakeResult{updateCount: n}
}

type fakeCall struct {
	inputs     map[string]any
	inputOrder []string
	outputs    map[string]WireType
	outValues  map[string]any
	results    []fakeResult
	pos        int
	executed   bool
	closed     bool
	execErr    error
	rowsClosed int
}

func newFakeCall(outValues map[string]any, results ...fakeResult) *fakeCall {
	if outValues == nil {
		outValues = map[string]any{}
	}
	return &fakeCall{
		inputs:    map[string]any{},
		outputs:   map[string]WireType{},
		outValues: outValues,
		results:   results,
	}
}

func (c *fakeCall) SetInput(name string, value any) error {
	if _, ok := c.inputs[name]; ok {
		return fmt.Errorf("input %q set twice", name)
	}
	c.inputs[name] = value
	c.inputOrder = append(c.inputOrder, name)
	return nil
}

func (c *fakeCall) RegisterOutput(name string, wire WireType) error {
	c.outputs[name] = wire
	return nil
}

func (c *fakeCall) Execute(_ context.Context) (bool, error) {
	if c.execErr != nil {
		return false, c.execErr
	}
	c.executed = true
	return c.currentIsSet(), nil
}

func (c *fakeCall) currentIsSet() bool {
	return c.pos < len(c.results) && c.results[c.pos].isSet
}

func (c *fakeCall) Output(name string) (any, error) {
	if _, ok := c.outputs[name]; !ok {
		return nil, fmt.Errorf("output %q is not registered", name)
	}
	return c.outValues[name], nil
}

func (c *fakeCall) ResultSet() (Rows, error) {
	if !c.currentIsSet() {
		return nil, nil
	}
	return &fakeRows{call: c, rows: c.results[c.pos].rows}, nil
}

func (c *fakeCall) UpdateCount() int64 {
	if c.pos < len(c.results) && !c.results[c.pos].isSet {
		return c.results[c.pos].updateCount
	}
	return -1
}

func (c *fakeCall) MoreResults(_ context.Context) (bool, error) {
	if c.pos < len(c.results) {
		c.pos++
	}
	return c.currentIsSet(), nil
}

func (c *fakeCall) Close() error {
	c.closed = true
	return nil
}

type fakeRows struct {
	call *fakeCall
	rows []map[string]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *fakeRows) Value(column string) (any, error) {
	v, ok := r.rows[r.i-1][column]
	if !ok {
		return nil, fmt.Errorf("column %q not found", column)
	}
	return v, nil
}

func (r *fakeRows) Err() error {
	return nil
}

func (r *fakeRows) Close() error {
	r.call.rowsClosed++
	return nil
}

type fakeConn struct {
	call   *fakeCall
	query  string
	closed bool
}

func (c *fakeConn) PrepareCall(_ context.Context, query string) (Call, error) {
	c.query = query
	return c.call, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeResolver hands out a fresh scripted call per connection.
type fakeResolver struct {
	mu      sync.Mutex
	script  func() *fakeCall
	targets map[string][2]string
	connErr error
	conns   []*fakeConn
}

func newFakeResolver(script func() *fakeCall) *fakeResolver {
	return &fakeResolver{
		script:  script,
		targets: map[string][2]string{"echo": {"dbo", "sp_echo"}},
	}
}

func (r *fakeResolver) Conn(_ context.Context, key string) (Conn, error) {
	if _, ok := r.targets[key]; !ok {
		return nil, errors.Wrapf(ErrUnknownKey, "key %q", key)
	}
	if r.connErr != nil {
		return nil, r.connErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conn := &fakeConn{call: r.script()}
	r.conns = append(r.conns, conn)
	return conn, nil
}

func (r *fakeResolver) CallTarget(key string) (string, string, error) {
	t, ok := r.targets[key]
	if !ok {
		return "", "", errors.Wrapf(ErrUnknownKey, "key %q", key)
	}
	return t[0], t[1], nil
}

func (r *fakeResolver) last() *fakeConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[len(r.conns)-1]
}
