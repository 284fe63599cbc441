// Package topology holds the cluster view and the node selector that
// picks a preferred node from it.
package topology

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/docdbgo/driver/conventions"
	"github.com/docdbgo/driver/errors"
	"github.com/docdbgo/driver/logging"
	"github.com/docdbgo/driver/node"
)

var log = logging.Get("topology")

// Topology is the cluster view: an etag plus an ordered, non-empty list
// of nodes. Instances are immutable once built - a refresh builds a new
// Topology and swaps it in atomically.
type Topology struct {
	Etag  string
	Nodes []*node.Node
}

// GetFunc performs the out-of-band GET against a node's topology
// endpoint and returns the raw response body. It is supplied by the
// caller so this package stays free of URL-building/transport concerns.
type GetFunc func(n *node.Node) ([]byte, error)

type topologyPayload struct {
	Etag  string `json:"Etag"`
	Nodes []struct {
		URL        string `json:"Url"`
		Database   string `json:"Database"`
		ClusterTag string `json:"ClusterTag"`
	} `json:"Nodes"`
}

// NetworkState is one instance per (store, database): topology, node
// selector, and conventions.
type NetworkState struct {
	Database    string
	Conventions conventions.Conventions
	Credentials interface{} // opaque, store-wide credentials

	storeID string
	fetch   GetFunc

	topology atomic.Pointer[Topology]
	selector *NodeSelector

	refreshMu      sync.Mutex
	refreshPending *refreshCall
}

type refreshCall struct {
	done chan struct{}
	err  error
}

// NewNetworkState seeds a NetworkState with an initial, non-empty
// topology; the node list stays non-empty for the lifetime of the
// network state.
func NewNetworkState(storeID, database string, initial *Topology, conv conventions.Conventions, fetch GetFunc) (*NetworkState, error) {
	if initial == nil || len(initial.Nodes) == 0 {
		return nil, errors.New(errors.KindUnknown, "initial topology must contain at least one node")
	}
	ns := &NetworkState{
		Database:    database,
		Conventions: conv,
		storeID:     storeID,
		fetch:       fetch,
	}
	ns.topology.Store(initial)
	ns.selector = NewNodeSelector(ns)
	return ns, nil
}

// Get returns a snapshot of the current topology. The returned pointer
// is never mutated in place - refresh always installs a new *Topology -
// so readers never observe a torn topology.
func (ns *NetworkState) Get() *Topology {
	return ns.topology.Load()
}

// Selector returns the node selector bound to this network state.
func (ns *NetworkState) Selector() *NodeSelector {
	return ns.selector
}

// Refresh re-fetches the topology from the currently selected node and
// atomically swaps it in. Concurrent calls collapse to at most one
// in-flight refresh; followers wait for it and share its result.
func (ns *NetworkState) Refresh() error {
	ns.refreshMu.Lock()
	if ns.refreshPending != nil {
		call := ns.refreshPending
		ns.refreshMu.Unlock()
		<-call.done
		return call.err
	}
	call := &refreshCall{done: make(chan struct{})}
	ns.refreshPending = call
	ns.refreshMu.Unlock()

	call.err = ns.doRefresh()
	close(call.done)

	ns.refreshMu.Lock()
	ns.refreshPending = nil
	ns.refreshMu.Unlock()

	return call.err
}

func (ns *NetworkState) doRefresh() error {
	current := ns.selector.Current()
	body, err := ns.fetch(current)
	if err != nil {
		return errors.Newf(errors.KindConnectFailed, "topology refresh: %v", err)
	}

	var payload topologyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.Newf(errors.KindInvalidResponsePayload, "topology refresh: %v", err)
	}

	nodes := make([]*node.Node, 0, len(payload.Nodes))
	for _, n := range payload.Nodes {
		parsed, err := parseNodeURL(n.URL, n.Database, ns.storeID)
		if err != nil {
			return err
		}
		parsed.ClusterTag = n.ClusterTag
		nodes = append(nodes, parsed)
	}
	if len(nodes) == 0 {
		return errors.New(errors.KindInvalidResponsePayload, "topology refresh: empty node list")
	}

	log.Infof("topology refreshed: etag=%s nodes=%d", payload.Etag, len(nodes))

	ns.topology.Store(&Topology{Etag: payload.Etag, Nodes: nodes})
	return nil
}

func parseNodeURL(rawURL, database, storeID string) (*node.Node, error) {
	var scheme node.Scheme
	var hostport string
	switch {
	case len(rawURL) > 8 && rawURL[:8] == "https://":
		scheme = node.SchemeHTTPS
		hostport = rawURL[8:]
	case len(rawURL) > 7 && rawURL[:7] == "http://":
		scheme = node.SchemeHTTP
		hostport = rawURL[7:]
	default:
		return nil, errors.Newf(errors.KindInvalidResponsePayload, "invalid node url: %s", rawURL)
	}

	host, port, err := splitHostPort(hostport)
	if err != nil {
		return nil, errors.Newf(errors.KindInvalidResponsePayload, "invalid node url %s: %v", rawURL, err)
	}
	return node.New(scheme, host, port, database, storeID), nil
}

func splitHostPort(hostport string) (string, int, error) {
	for i := len(hostport) - 1; i >= 0; i-- {
		if hostport[i] == ':' {
			host := hostport[:i]
			var port int
			if _, err := fmt.Sscanf(hostport[i+1:], "%d", &port); err != nil {
				return "", 0, err
			}
			return host, port, nil
		}
	}
	return "", 0, fmt.Errorf("missing port in %q", hostport)
}

// NodeSelector picks the current preferred node from a topology and
// rotates on failover.
type NodeSelector struct {
	ns           *NetworkState
	currentIndex int32
}

func NewNodeSelector(ns *NetworkState) *NodeSelector {
	return &NodeSelector{ns: ns}
}

// Current returns the node at currentIndex. currentIndex is clamped
// modulo the live node list length so it always satisfies the invariant
// 0 <= current-index < len(nodes) even if the topology shrank since the
// index was last advanced.
func (s *NodeSelector) Current() *node.Node {
	t := s.ns.Get()
	idx := int(atomic.LoadInt32(&s.currentIndex)) % len(t.Nodes)
	if idx < 0 {
		idx += len(t.Nodes)
	}
	return t.Nodes[idx]
}

// OnFailure advances the index modulo the node list length and returns
// the next node. Failover across attempts is the caller's responsibility
// once it has exhausted retries against the current node.
func (s *NodeSelector) OnFailure() *node.Node {
	t := s.ns.Get()
	next := atomic.AddInt32(&s.currentIndex, 1) % int32(len(t.Nodes))
	if next < 0 {
		next += int32(len(t.Nodes))
	}
	atomic.StoreInt32(&s.currentIndex, next)
	return t.Nodes[next]
}
