// Package wire implements the HTTP connection: one persistent,
// multiplexed connection to a single node, exposing connect/submit/feed
// as an event stream keyed by request-ref.
//
// It is realized on top of net/http.Client, keeping one long-lived
// connection per node and multiplexing in-flight requests through a map
// keyed by a monotonic request id - here the "wire bytes" are an
// HTTP/1.1 response body instead of a length-prefixed frame, so
// assembly happens through net/http's own reader instead of a hand
// rolled framer.
package wire

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docdbgo/driver/errors"
	"github.com/docdbgo/driver/logging"
	"github.com/docdbgo/driver/node"
)

var log = logging.Get("wire")

// EventKind discriminates the four event shapes a connection emits.
type EventKind int

const (
	EventStatus EventKind = iota
	EventHeaders
	EventData
	EventDone
)

// Event is one assembled unit of a streamed response, tagged with the
// request-ref it belongs to so a single connection can multiplex many
// in-flight requests.
type Event struct {
	Kind    EventKind
	Ref     uint64
	Code    int
	Headers http.Header
	Chunk   []byte
	Err     error // set on a transport-level failure for this ref
	Fatal   bool  // true if the failure should terminate the owning connection
}

// Connection is one persistent HTTP/1.1 or HTTPS connection to one node.
// Multiple requests may be in flight at a time; their events interleave
// on the same channel, tagged by ref.
type Connection struct {
	client  *http.Client
	events  chan Event
	nextRef uint64
	closed  int32

	// closeMu serializes emit's check-then-send against Close closing the
	// channel; without it a drive() goroutine can pass the closed check
	// and then send on a channel Close() closes a moment later.
	closeMu sync.RWMutex
}

// Connect dials the node and returns a live handle, or an error that
// terminates the owning executor during init.
func Connect(n *node.Node) (*Connection, error) {
	addr := fmt.Sprintf("%s:%d", n.Host, n.Port)
	probe, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, errors.Newf(errors.KindConnectFailed, "connect %s: %v", addr, err)
	}
	_ = probe.Close()

	transport := &http.Transport{
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
	}
	if n.Scheme == node.SchemeHTTPS {
		if cfg, ok := n.Transport.(*tls.Config); ok && cfg != nil {
			transport.TLSClientConfig = cfg
		}
	}

	return &Connection{
		client: &http.Client{Transport: transport},
		events: make(chan Event, 64),
	}, nil
}

// Events returns the channel the owning executor drains as its inbox for
// wire-driven input.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// Submit issues a request and returns its request-ref immediately;
// response assembly happens asynchronously and is reported through Events.
func (c *Connection) Submit(ctx context.Context, method, url string, headers http.Header, body []byte) (uint64, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return 0, errors.New(errors.KindStreamClosed, "connection closed")
	}

	ref := atomic.AddUint64(&c.nextRef, 1)

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	go c.drive(ref, req)
	return ref, nil
}

func (c *Connection) drive(ref uint64, req *http.Request) {
	resp, err := c.client.Do(req)
	if err != nil {
		fatal := isTransportError(err)
		c.emit(Event{Kind: EventDone, Ref: ref, Err: errors.Newf(errors.KindConnectFailed, "%v", err), Fatal: fatal})
		return
	}
	defer resp.Body.Close()

	c.emit(Event{Kind: EventStatus, Ref: ref, Code: resp.StatusCode})
	c.emit(Event{Kind: EventHeaders, Ref: ref, Headers: resp.Header})

	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.emit(Event{Kind: EventData, Ref: ref, Chunk: chunk})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			fatal := isTransportError(rerr)
			c.emit(Event{Kind: EventDone, Ref: ref, Err: rerr, Fatal: fatal})
			return
		}
	}
	c.emit(Event{Kind: EventDone, Ref: ref})
}

func (c *Connection) emit(e Event) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if atomic.LoadInt32(&c.closed) == 1 {
		return
	}
	select {
	case c.events <- e:
	default:
		log.Warningf("wire event channel full, dropping event for ref %d", e.Ref)
	}
}

// Close terminates the connection. Outstanding requests will still
// complete server-side (no cooperative cancellation) but their events
// are no longer delivered - the owning executor observes this as its
// event stream closing.
func (c *Connection) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.client.CloseIdleConnections()
	close(c.events)
	return nil
}

// isTransportError distinguishes a connection-lost/TLS failure (which
// terminates the owning executor) from a merely malformed HTTP exchange
// (logged, executor continues).
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if ok := isNetError(err, &netErr); ok {
		return true
	}
	return false
}

func isNetError(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
