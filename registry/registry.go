// Package registry implements the two name -> actor directories the
// driver needs: sessions and request-executors. Both are xsync-backed
// concurrent maps owned by the Store, independently keyed by session id
// and by node key respectively.
package registry

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/docdbgo/driver/conventions"
	"github.com/docdbgo/driver/executor"
	"github.com/docdbgo/driver/logging"
	"github.com/docdbgo/driver/metrics"
	"github.com/docdbgo/driver/node"
	"github.com/docdbgo/driver/topology"
)

var log = logging.Get("registry")

// ExecutorRegistry maps (node,database) keys to their live executor,
// starting one lazily and deregistering it when its actor dies.
type ExecutorRegistry struct {
	byKey *xsync.MapOf[string, *executor.Executor]
}

func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{byKey: xsync.NewMapOf[string, *executor.Executor]()}
}

// GetOrCreate returns the existing executor for n, or starts a new one
// the first time this (url, database) pair is asked for.
func (r *ExecutorRegistry) GetOrCreate(n *node.Node, ns *topology.NetworkState, conv conventions.Conventions, policy executor.NodePolicy, mreg *metrics.Registry) (*executor.Executor, error) {
	key := n.Key()
	if e, ok := r.byKey.Load(key); ok {
		return e, nil
	}

	e, err := executor.Start(n, ns, conv, policy, mreg)
	if err != nil {
		return nil, err
	}

	actual, loaded := r.byKey.LoadOrStore(key, e)
	if loaded {
		// Lost the race to another caller creating the same key.
		e.Close()
		return actual, nil
	}

	go func() {
		<-e.Done()
		r.byKey.Compute(key, func(v *executor.Executor, loaded bool) (*executor.Executor, bool) {
			if loaded && v == e {
				return nil, true // delete
			}
			return v, !loaded
		})
		log.Infof("executor for %s deregistered: %v", key, e.DeathReason())
	}()

	return e, nil
}

// Get returns the live executor for key, if any.
func (r *ExecutorRegistry) Get(key string) (*executor.Executor, bool) {
	return r.byKey.Load(key)
}

// CloseAll terminates every live executor.
func (r *ExecutorRegistry) CloseAll() {
	r.byKey.Range(func(key string, e *executor.Executor) bool {
		e.Close()
		return true
	})
}

// SessionHandle is the minimal surface the registry needs from a
// Session actor: its id and a way to tear it down. It is satisfied by
// *session.Session without registry importing session's full API,
// avoiding a cycle back from session to registry.
type SessionHandle interface {
	ID() string
	Close()
}

// SessionRegistry maps session ids to their live session actor.
type SessionRegistry struct {
	byID *xsync.MapOf[string, SessionHandle]
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byID: xsync.NewMapOf[string, SessionHandle]()}
}

// Register adds a newly opened session. Key uniqueness (session-id) is
// the caller's responsibility.
func (r *SessionRegistry) Register(s SessionHandle) {
	r.byID.Store(s.ID(), s)
}

// Deregister removes a session, e.g. on explicit close.
func (r *SessionRegistry) Deregister(id string) {
	r.byID.Delete(id)
}

// Get returns the live session for id, if any.
func (r *SessionRegistry) Get(id string) (SessionHandle, bool) {
	return r.byID.Load(id)
}

// CloseAll tears down every live session.
func (r *SessionRegistry) CloseAll() {
	r.byID.Range(func(id string, s SessionHandle) bool {
		s.Close()
		return true
	})
}
