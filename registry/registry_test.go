package registry

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/docdbgo/driver/conventions"
	"github.com/docdbgo/driver/executor"
	"github.com/docdbgo/driver/node"
)

func testNodeFromServer(t *testing.T, srv *httptest.Server) *node.Node {
	t.Helper()
	addr := strings.TrimPrefix(srv.URL, "http://")
	parts := strings.Split(addr, ":")
	port, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		t.Fatalf("could not parse test server port: %v", err)
	}
	return node.New(node.SchemeHTTP, "127.0.0.1", port, "orders", "store-1")
}

func TestExecutorRegistryReusesExistingExecutor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewExecutorRegistry()
	n := testNodeFromServer(t, srv)

	e1, err := reg.GetOrCreate(n, nil, conventions.New(), executor.NodePolicy{}, nil)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	defer e1.Close()

	e2, err := reg.GetOrCreate(n, nil, conventions.New(), executor.NodePolicy{}, nil)
	if err != nil {
		t.Fatalf("second GetOrCreate() error = %v", err)
	}
	if e1 != e2 {
		t.Error("expected the same executor instance to be returned for the same node key")
	}
}

func TestExecutorRegistryDeregistersOnDeath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	n := testNodeFromServer(t, srv)

	reg := NewExecutorRegistry()
	e, err := reg.GetOrCreate(n, nil, conventions.New(), executor.NodePolicy{}, nil)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	srv.Close() // the server goes away; e.Close() below is what ends the executor
	e.Close()
	<-e.Done()

	// Deregistration runs in the registry's own goroutine once Done is
	// closed, so give it a bounded moment to happen.
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := reg.Get(n.Key()); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected the executor to be deregistered after it died")
		}
		time.Sleep(time.Millisecond)
	}
}

type fakeSession struct {
	id     string
	closed bool
}

func (f *fakeSession) ID() string { return f.id }
func (f *fakeSession) Close()     { f.closed = true }

func TestSessionRegistryRegisterGetDeregister(t *testing.T) {
	reg := NewSessionRegistry()
	s := &fakeSession{id: "sess-1"}
	reg.Register(s)

	got, ok := reg.Get("sess-1")
	if !ok || got != s {
		t.Fatalf("Get() = %v, %v, want the registered session", got, ok)
	}

	reg.Deregister("sess-1")
	if _, ok := reg.Get("sess-1"); ok {
		t.Error("expected session to be gone after Deregister")
	}
}

func TestSessionRegistryCloseAll(t *testing.T) {
	reg := NewSessionRegistry()
	a := &fakeSession{id: "a"}
	b := &fakeSession{id: "b"}
	reg.Register(a)
	reg.Register(b)

	reg.CloseAll()

	if !a.closed || !b.closed {
		t.Error("expected CloseAll to close every registered session")
	}
}
