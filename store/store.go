// Package store implements the Store: the top-level handle an
// application holds, tying conventions, topology, the executor and
// session registries, and metrics together into one supervised unit.
package store

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/docdbgo/driver/command"
	"github.com/docdbgo/driver/conventions"
	"github.com/docdbgo/driver/errors"
	"github.com/docdbgo/driver/executor"
	"github.com/docdbgo/driver/logging"
	"github.com/docdbgo/driver/metrics"
	"github.com/docdbgo/driver/node"
	"github.com/docdbgo/driver/registry"
	"github.com/docdbgo/driver/session"
	"github.com/docdbgo/driver/topology"
)

var log = logging.Get("store")

// Config seeds a new Store.
type Config struct {
	InitialURLs []string // bootstrap node urls, e.g. "http://127.0.0.1:8080"
	Database    string   // default database
	Conventions conventions.Conventions
	RetryPolicy conventions.RetryPolicy
	NodePolicy  executor.NodePolicy
	Transport   node.TransportOptions
}

// Store is the top-level handle. It owns the executor and session
// registries and one topology.NetworkState per database that has been
// used, created lazily on first access.
type Store struct {
	id          string
	cfg         Config
	metrics     *metrics.Registry
	execReg     *registry.ExecutorRegistry
	sessReg     *registry.SessionRegistry

	mu             sync.Mutex
	networkStates  map[string]*topology.NetworkState
	closed         bool
}

// Open constructs a Store seeded from a caller-supplied bootstrap node
// list, before any real topology is known. No network call is made
// until the first request.
func Open(cfg Config) (*Store, error) {
	if len(cfg.InitialURLs) == 0 {
		return nil, errors.New(errors.KindUnknown, "at least one initial url is required")
	}

	id := uuid.NewString()
	s := &Store{
		id:            id,
		cfg:           cfg,
		metrics:       metrics.NewRegistry(id),
		execReg:       registry.NewExecutorRegistry(),
		sessReg:       registry.NewSessionRegistry(),
		networkStates: make(map[string]*topology.NetworkState),
	}

	if _, err := s.networkStateFor(cfg.Database); err != nil {
		s.metrics.Unregister()
		return nil, err
	}
	return s, nil
}

// ID returns the store's identity, used as the StoreID nodes carry to
// break the store/node/topology reference cycle.
func (s *Store) ID() string { return s.id }

// NetworkState returns the topology view for the store's default database,
// creating it lazily if this is the first call to touch it.
func (s *Store) NetworkState() (*topology.NetworkState, error) {
	return s.networkStateFor(s.cfg.Database)
}

func (s *Store) networkStateFor(database string) (*topology.NetworkState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ns, ok := s.networkStates[database]; ok {
		return ns, nil
	}

	bootstrap := make([]*node.Node, 0, len(s.cfg.InitialURLs))
	for _, raw := range s.cfg.InitialURLs {
		n, err := parseBootstrapURL(raw, database, s.id, s.cfg.Transport)
		if err != nil {
			return nil, err
		}
		bootstrap = append(bootstrap, n)
	}

	ns, err := topology.NewNetworkState(s.id, database, &topology.Topology{Nodes: bootstrap}, s.cfg.Conventions, s.fetchTopology)
	if err != nil {
		return nil, err
	}
	s.networkStates[database] = ns
	return ns, nil
}

// fetchTopology issues the out-of-band GET a topology.Refresh needs,
// using the same executor registry every ordinary request goes through
// so a topology fetch is subject to the same connection/health rules.
func (s *Store) fetchTopology(n *node.Node) ([]byte, error) {
	s.mu.Lock()
	ns := s.networkStates[n.Database]
	s.mu.Unlock()

	e, err := s.execReg.GetOrCreate(n, ns, s.cfg.Conventions, s.cfg.NodePolicy, s.metrics)
	if err != nil {
		return nil, err
	}
	resp, err := e.Request(context.Background(), topologyCommand{}, http.Header{}, executor.RequestOptions{Retry: s.cfg.RetryPolicy})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

type topologyCommand struct{}

func (topologyCommand) CreateRequest(n *node.Node) (command.Command, error) {
	return command.Command{
		Method:        command.MethodGet,
		URL:           n.URL() + "/topology?database=" + n.Database,
		IsReadRequest: true,
	}, nil
}

// Dispatch implements session.Dispatcher: pick the current node, run the
// command against its executor, and fail over to the next node in the
// topology when retries against the current node are exhausted with a
// retryable outcome.
func (s *Store) Dispatch(ctx context.Context, cmd command.Builder, headers http.Header) (*executor.Response, error) {
	ns, err := s.networkStateFor(s.cfg.Database)
	if err != nil {
		return nil, err
	}

	selector := ns.Selector()
	attempted := 0
	nodeCount := len(ns.Get().Nodes)

	var lastErr error
	for attempted < nodeCount {
		n := selector.Current()
		e, err := s.execReg.GetOrCreate(n, ns, s.cfg.Conventions, s.cfg.NodePolicy, s.metrics)
		if err != nil {
			lastErr = err
			selector.OnFailure()
			attempted++
			continue
		}

		resp, err := e.Request(ctx, cmd, headers, executor.RequestOptions{Retry: s.cfg.RetryPolicy})
		if err == nil {
			return resp, nil
		}

		driverErr, ok := err.(*errors.Error)
		if !ok || !driverErr.Kind.Retryable() {
			return nil, err
		}

		lastErr = err
		selector.OnFailure()
		attempted++
	}
	return nil, lastErr
}

// OpenSession opens a fresh Session against database (or the store's
// default database when empty), registered so it can be looked up and
// torn down by id.
func (s *Store) OpenSession(database string) (*session.Session, error) {
	if database == "" {
		database = s.cfg.Database
	}
	if _, err := s.networkStateFor(database); err != nil {
		return nil, err
	}

	sess := session.New(uuid.NewString(), database, s.cfg.Conventions, s, s.metrics)
	s.sessReg.Register(sess)
	return sess, nil
}

// CloseSession deregisters a session by id.
func (s *Store) CloseSession(id string) {
	s.sessReg.Deregister(id)
}

// Close tears down every executor and session owned by the store.
// Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.sessReg.CloseAll()
	s.execReg.CloseAll()
	s.metrics.Unregister()
	log.Infof("store %s closed", s.id)
	return nil
}

func parseBootstrapURL(raw, database, storeID string, transport node.TransportOptions) (*node.Node, error) {
	var scheme node.Scheme
	var hostport string
	switch {
	case len(raw) > 8 && raw[:8] == "https://":
		scheme = node.SchemeHTTPS
		hostport = raw[8:]
	case len(raw) > 7 && raw[:7] == "http://":
		scheme = node.SchemeHTTP
		hostport = raw[7:]
	default:
		return nil, errors.Newf(errors.KindInvalidResponsePayload, "invalid bootstrap url: %s", raw)
	}

	host, port, err := splitHostPort(hostport)
	if err != nil {
		return nil, errors.Newf(errors.KindInvalidResponsePayload, "invalid bootstrap url %s: %v", raw, err)
	}
	n := node.New(scheme, host, port, database, storeID)
	n.Transport = transport
	return n, nil
}

func splitHostPort(hostport string) (string, int, error) {
	for i := len(hostport) - 1; i >= 0; i-- {
		if hostport[i] == ':' {
			var port int
			if _, err := fmt.Sscanf(hostport[i+1:], "%d", &port); err != nil {
				return "", 0, err
			}
			return hostport[:i], port, nil
		}
	}
	return "", 0, fmt.Errorf("missing port in %q", hostport)
}
