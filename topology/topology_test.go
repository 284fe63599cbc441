package topology

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docdbgo/driver/conventions"
	"github.com/docdbgo/driver/node"
)

func threeNodeTopology() *Topology {
	return &Topology{
		Etag: "e0",
		Nodes: []*node.Node{
			node.New(node.SchemeHTTP, "n1", 8080, "orders", "store-1"),
			node.New(node.SchemeHTTP, "n2", 8080, "orders", "store-1"),
			node.New(node.SchemeHTTP, "n3", 8080, "orders", "store-1"),
		},
	}
}

func TestNodeSelectorWrapsAround(t *testing.T) {
	ns, err := NewNetworkState("store-1", "orders", threeNodeTopology(), conventions.New(), nil)
	if err != nil {
		t.Fatalf("NewNetworkState() error = %v", err)
	}
	sel := ns.Selector()

	if got := sel.Current().Host; got != "n1" {
		t.Fatalf("Current().Host = %q, want n1", got)
	}
	if got := sel.OnFailure().Host; got != "n2" {
		t.Fatalf("OnFailure().Host = %q, want n2", got)
	}
	if got := sel.OnFailure().Host; got != "n3" {
		t.Fatalf("OnFailure().Host = %q, want n3", got)
	}
	if got := sel.OnFailure().Host; got != "n1" {
		t.Fatalf("OnFailure().Host = %q, want n1 (wrapped around)", got)
	}
}

func TestNewNetworkStateRejectsEmptyTopology(t *testing.T) {
	_, err := NewNetworkState("store-1", "orders", &Topology{}, conventions.New(), nil)
	if err == nil {
		t.Fatal("expected an error for an empty initial topology, got nil")
	}
}

func TestRefreshInstallsNewTopology(t *testing.T) {
	fetch := func(n *node.Node) ([]byte, error) {
		return []byte(`{"Etag":"e1","Nodes":[{"Url":"http://n1:8080","Database":"orders"},{"Url":"http://n4:8080","Database":"orders"}]}`), nil
	}
	ns, err := NewNetworkState("store-1", "orders", threeNodeTopology(), conventions.New(), fetch)
	if err != nil {
		t.Fatalf("NewNetworkState() error = %v", err)
	}

	if err := ns.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	got := ns.Get()
	if got.Etag != "e1" {
		t.Errorf("Etag = %q, want e1", got.Etag)
	}
	if len(got.Nodes) != 2 {
		t.Fatalf("len(Nodes) = %d, want 2", len(got.Nodes))
	}
}

// TestRefreshCollapsesConcurrentCalls checks that overlapping Refresh
// calls share a single underlying fetch, per the "collapse to at most
// one in-flight refresh" guarantee.
func TestRefreshCollapsesConcurrentCalls(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(n *node.Node) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
		return []byte(`{"Etag":"e1","Nodes":[{"Url":"http://n1:8080","Database":"orders"}]}`), nil
	}

	ns, err := NewNetworkState("store-1", "orders", threeNodeTopology(), conventions.New(), fetch)
	if err != nil {
		t.Fatalf("NewNetworkState() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = ns.Refresh()
	}()

	<-started
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ns.Refresh()
		}()
	}
	time.Sleep(20 * time.Millisecond) // let the followers queue behind the in-flight refresh
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch was called %d times, want exactly 1", got)
	}
}
