package core

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// execContext is the diagnostic state of a single execution. It is never shared
// between executions and is reset before Execute returns.
type execContext struct {
	mu     sync.Mutex
	id     uuid.UUID
	key    string
	query  string
	member string
}

type execContextKey struct{}

func newExecContext(key string) *execContext {
	return &execContext{id: uuid.New(), key: key}
}

func withExecContext(ctx context.Context, ec *execContext) context.Context {
	return context.WithValue(ctx, execContextKey{}, ec)
}

func execContextFrom(ctx context.Context) *execContext {
	ec, _ := ctx.Value(execContextKey{}).(*execContext)
	return ec
}

func (ec *execContext) setQuery(q string) {
	ec.mu.Lock()
	ec.query = q
	ec.mu.Unlock()
}

// enter records the member being bound and returns the func restoring the previous one.
func (ec *execContext) enter(member string) func() {
	ec.mu.Lock()
	prev := ec.member
	ec.member = member
	ec.mu.Unlock()
	return func() {
		ec.mu.Lock()
		ec.member = prev
		ec.mu.Unlock()
	}
}

func (ec *execContext) snapshot() (query, member string) {
	if ec == nil {
		return "", ""
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.query, ec.member
}

func (ec *execContext) clear() {
	ec.mu.Lock()
	ec.query = ""
	ec.member = ""
	ec.mu.Unlock()
}

// QueryFromContext returns the call text of the execution running under ctx.
// Transformation units use it to enrich their own errors.
func QueryFromContext(ctx context.Context) string {
	q, _ := execContextFrom(ctx).snapshot()
	return q
}

// MemberFromContext returns the member currently being bound under ctx.
func MemberFromContext(ctx context.Context) string {
	_, m := execContextFrom(ctx).snapshot()
	return m
}
