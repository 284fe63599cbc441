// Package executor implements the request executor: one actor per
// (node, database) owning a single wire.Connection, applying
// retries/backoff, classifying responses, and emitting topology-refresh
// events - one actor per connection, request dispatch keyed by a
// monotonic id, retry loop around Send, adapted from raw framed TCP to
// the HTTP status/header/body protocol this driver speaks.
package executor

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/docdbgo/driver/command"
	"github.com/docdbgo/driver/conventions"
	"github.com/docdbgo/driver/errors"
	"github.com/docdbgo/driver/logging"
	"github.com/docdbgo/driver/metrics"
	"github.com/docdbgo/driver/node"
	"github.com/docdbgo/driver/topology"
	"github.com/docdbgo/driver/wire"
)

var log = logging.Get("executor")

// RequestOptions groups the per-call knobs a Request needs beyond the
// command itself.
type RequestOptions struct {
	Retry conventions.RetryPolicy
}

type assembly struct {
	status  int
	headers http.Header
	body    bytes.Buffer
	replyCh chan Outcome
}

// Executor is the per-(node,database) actor. It owns its Connection
// exclusively - no other goroutine reads from it.
type Executor struct {
	Node *node.Node

	conn        *wire.Connection
	networkView *topology.NetworkState
	conventions conventions.Conventions
	nodePolicy  NodePolicy
	metrics     *metrics.Registry

	mu       sync.Mutex
	inflight map[uint64]*assembly

	deathOnce sync.Once
	deathErr  error
	deathCh   chan struct{}
}

// Start connects to n and, on success, launches the actor's serving
// loop. On failure it returns the transport reason and starts nothing -
// the executor does not loop on connect failures; the caller (the
// executor registry / supervisor) decides whether to retry.
func Start(n *node.Node, ns *topology.NetworkState, conv conventions.Conventions, policy NodePolicy, reg *metrics.Registry) (*Executor, error) {
	conn, err := wire.Connect(n)
	if err != nil {
		n.SetHealth(node.HealthUnhealthy)
		return nil, err
	}
	n.SetHealth(node.HealthHealthy)

	e := &Executor{
		Node:        n,
		conn:        conn,
		networkView: ns,
		conventions: conv,
		nodePolicy:  policy,
		metrics:     reg,
		inflight:    make(map[uint64]*assembly),
		deathCh:     make(chan struct{}),
	}
	go e.serve()
	return e, nil
}

// Done returns a channel closed when the executor's actor has
// terminated, either from a transport error or an explicit Close.
func (e *Executor) Done() <-chan struct{} {
	return e.deathCh
}

// DeathReason returns the error the actor terminated with, if any.
func (e *Executor) DeathReason() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deathErr
}

// UpdateClusterTag is asynchronous and mutates node state only.
func (e *Executor) UpdateClusterTag(tag string) {
	e.Node.UpdateClusterTag(tag)
}

// Close terminates the executor's connection and actor loop.
func (e *Executor) Close() {
	_ = e.conn.Close()
}

// serve is the actor's single-consumer loop over its connection's
// wire-driven event stream.
func (e *Executor) serve() {
	for ev := range e.conn.Events() {
		switch ev.Kind {
		case wire.EventStatus:
			e.withAssembly(ev.Ref, func(a *assembly) { a.status = ev.Code })
		case wire.EventHeaders:
			e.withAssembly(ev.Ref, func(a *assembly) { a.headers = ev.Headers })
		case wire.EventData:
			e.withAssembly(ev.Ref, func(a *assembly) { a.body.Write(ev.Chunk) })
		case wire.EventDone:
			e.handleDone(ev)
			if ev.Fatal {
				e.terminate(ev.Err)
				return
			}
		}
	}
	e.terminate(errors.New(errors.KindStreamClosed, "connection event stream closed"))
}

func (e *Executor) withAssembly(ref uint64, fn func(*assembly)) {
	e.mu.Lock()
	a, ok := e.inflight[ref]
	e.mu.Unlock()
	if ok {
		fn(a)
	}
}

func (e *Executor) handleDone(ev wire.Event) {
	e.mu.Lock()
	a, ok := e.inflight[ev.Ref]
	if ok {
		delete(e.inflight, ev.Ref)
	}
	e.mu.Unlock()
	if !ok {
		return // caller already abandoned the reply channel (timeout)
	}

	if ev.Err != nil {
		// A mid-stream, non-fatal HTTP-level error: log it, the actor
		// continues.
		log.Errorf("stream error for ref %d: %v", ev.Ref, ev.Err)
		a.replyCh <- Outcome{Err: errors.New(errors.KindStreamClosed, ev.Err.Error())}
		return
	}

	outcome := Classify(a.status, a.headers, a.body.Bytes(), e.nodePolicy)
	if outcome.Err == nil && a.headers.Get("Refresh-Topology") != "" && !e.conventions.DisableTopologyUpdate && e.networkView != nil {
		go func() {
			if err := e.networkView.Refresh(); err != nil {
				log.Warningf("topology refresh failed: %v", err)
			} else if e.metrics != nil {
				e.metrics.TopologyRefreshCount()
			}
		}()
	}
	a.replyCh <- outcome
}

func (e *Executor) terminate(reason error) {
	e.deathOnce.Do(func() {
		e.mu.Lock()
		e.deathErr = reason
		pending := e.inflight
		e.inflight = make(map[uint64]*assembly)
		e.mu.Unlock()

		for _, a := range pending {
			a.replyCh <- Outcome{Err: errors.New(errors.KindStreamClosed, "executor terminated")}
		}
		close(e.deathCh)
	})
}

// Request is the synchronous-from-the-caller's-perspective entry point.
// It builds the request via the command's contract, applies the
// URL-length guard, submits it, and retries retryable outcomes up to
// opts.Retry.RetryCount times with a constant backoff.
func (e *Executor) Request(ctx context.Context, cmd command.Builder, headers http.Header, opts RequestOptions) (*Response, error) {
	built, err := cmd.CreateRequest(e.Node)
	if err != nil {
		return nil, err
	}

	if built.IsReadRequest && len(built.URL) > e.conventions.MaxLengthOfQueryUsingGetURL {
		return nil, errors.New(errors.KindMaxURLLength, "maximum_url_length_reached")
	}

	policy := opts.Retry.Normalized()
	attempts := policy.RetryCount + 1

	var last Outcome
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		outcome, submitErr := e.doOnce(ctx, built, headers)
		if submitErr != nil {
			return nil, submitErr
		}
		last = outcome

		if e.metrics != nil {
			e.metrics.ObserveLatency(e.Node.URL(), time.Since(start).Seconds())
		}

		if outcome.Err == nil {
			if e.metrics != nil {
				e.metrics.RequestCount(e.Node.URL(), "success")
			}
			return outcome.Response, nil
		}

		if !outcome.Retryable {
			if e.metrics != nil {
				e.metrics.RequestCount(e.Node.URL(), "non_retryable")
			}
			return nil, outcome.Err
		}

		if e.metrics != nil {
			e.metrics.RequestCount(e.Node.URL(), "retryable")
		}
		if attempt < attempts-1 {
			if e.metrics != nil {
				e.metrics.RetryCount(e.Node.URL())
			}
			time.Sleep(policy.RetryBackoff)
		}
	}
	return nil, last.Err
}

func (e *Executor) doOnce(ctx context.Context, built command.Command, callerHeaders http.Header) (Outcome, error) {
	h := http.Header{}
	h.Set("content-type", "application/json")
	h.Set("accept", "application/json")
	if !e.conventions.DisableTopologyUpdate && e.networkView != nil {
		h.Set("Topology-Etag", e.networkView.Get().Etag)
	}
	for k, vs := range callerHeaders {
		for _, v := range vs {
			h.Add(k, v)
		}
	}

	replyCh := make(chan Outcome, 1)

	reqCtx := ctx
	var cancel context.CancelFunc
	if e.conventions.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, e.conventions.Timeout)
		defer cancel()
	}

	ref, err := e.conn.Submit(reqCtx, string(built.Method), built.URL, h, built.Body)
	if err != nil {
		return Outcome{}, err
	}

	e.mu.Lock()
	e.inflight[ref] = &assembly{replyCh: replyCh}
	e.mu.Unlock()

	select {
	case outcome := <-replyCh:
		return outcome, nil
	case <-reqCtx.Done():
		// Abandon the reply channel; the executor discards the eventual
		// {done} event for this ref when it arrives.
		e.mu.Lock()
		delete(e.inflight, ref)
		e.mu.Unlock()
		return Outcome{}, errors.New(errors.KindStreamClosed, "request timed out")
	}
}
