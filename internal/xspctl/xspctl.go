// Package xspctl implements an optional Unix-domain diagnostics socket a
// long-running SegmentsWriter can expose so an operator tool can ask "how
// much of this version is packed" without touching the hot write path —
// the packing-progress analogue of gocryptfs's "-ctlsock" path-query
// socket, scoped down from EncryptPath/DecryptPath queries to one fixed
// query shape. It is never required by any core invariant and ships
// disabled unless a caller explicitly calls Serve.
package xspctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/3nsoft/xsp-files-sub000/internal/segments"
	"github.com/3nsoft/xsp-files-sub000/internal/tlog"
)

// Source is the read-only view into a writer's packing progress that a
// diagnostics query answers against.
type Source interface {
	ShowPackedLayout() []segments.LayoutEntry
	UnpackedReencryptChainSegs(chain int) ([]uint32, error)
}

// Request is the one JSON shape this socket accepts.
type Request struct {
	// Query is "layout" (dump ShowPackedLayout) or "unpacked" (dump
	// UnpackedReencryptChainSegs for Chain).
	Query string `json:"query"`
	Chain int    `json:"chain,omitempty"`
}

// Response is the one JSON shape this socket returns.
type Response struct {
	Layout       []segments.LayoutEntry `json:"layout,omitempty"`
	UnpackedSegs []uint32               `json:"unpackedSegs,omitempty"`
	Err          string                 `json:"err,omitempty"`
}

const (
	maxRequestsPerMinute = 60
	rateLimitWindow      = time.Minute
	connectionTimeout    = 30 * time.Second
	readTimeout          = 5 * time.Second
	// ReadBufSize bounds one request; a layout query never needs a request
	// body bigger than this.
	ReadBufSize = 5000
)

type rateLimitEntry struct {
	lastRequest  time.Time
	requestCount int
}

type handler struct {
	src    Source
	socket *net.UnixListener

	rateMu      sync.Mutex
	rateLimiter map[string]*rateLimitEntry
}

// Serve serves diagnostics queries against src on sock. It blocks until
// Accept fails, so callers run it in its own goroutine. Each connection is
// handled on a goroutine of its own; handlers do not recover from panics.
func Serve(sock net.Listener, src Source) {
	h := &handler{
		src:         src,
		socket:      sock.(*net.UnixListener),
		rateLimiter: make(map[string]*rateLimitEntry),
	}
	h.acceptLoop()
}

func (h *handler) acceptLoop() {
	for {
		conn, err := h.socket.Accept()
		if err != nil {
			tlog.Info.Printf("xspctl: Accept error: %v", err)
			return
		}
		go h.handleConnection(conn.(*net.UnixConn))
	}
}

func (h *handler) checkPeerCredentials(conn *net.UnixConn) error {
	cred, err := getPeerCredentials(conn)
	if err != nil {
		return fmt.Errorf("failed to get peer credentials: %v", err)
	}
	if cred.UID != os.Getuid() {
		return fmt.Errorf("peer UID %d does not match server UID %d", cred.UID, os.Getuid())
	}
	return nil
}

func (h *handler) checkRateLimit(clientID string) error {
	h.rateMu.Lock()
	defer h.rateMu.Unlock()

	now := time.Now()
	entry, ok := h.rateLimiter[clientID]
	if !ok {
		h.rateLimiter[clientID] = &rateLimitEntry{lastRequest: now, requestCount: 1}
		return nil
	}
	if now.Sub(entry.lastRequest) > rateLimitWindow {
		entry.lastRequest = now
		entry.requestCount = 1
		return nil
	}
	if entry.requestCount >= maxRequestsPerMinute {
		return fmt.Errorf("rate limit exceeded: %d requests per minute", maxRequestsPerMinute)
	}
	entry.requestCount++
	entry.lastRequest = now
	return nil
}

func (h *handler) handleConnection(conn *net.UnixConn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connectionTimeout))

	if err := h.checkPeerCredentials(conn); err != nil {
		tlog.Warn.Printf("xspctl: peer credential check failed: %v", err)
		return
	}
	clientID := clientIdentifier(conn)

	buf := make([]byte, ReadBufSize)
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := conn.Read(buf)
		if err == io.EOF {
			return
		} else if err != nil {
			tlog.Warn.Printf("xspctl: read error: %v", err)
			return
		}
		if n == ReadBufSize {
			tlog.Warn.Printf("xspctl: request too big (max %d bytes)", ReadBufSize-1)
			return
		}
		if err := h.checkRateLimit(clientID); err != nil {
			sendResponse(conn, Response{Err: err.Error()})
			return
		}

		var req Request
		if err := json.Unmarshal(buf[:n], &req); err != nil {
			sendResponse(conn, Response{Err: "JSON unmarshal error: " + err.Error()})
			continue
		}
		h.handleRequest(&req, conn)
	}
}

func (h *handler) handleRequest(req *Request, conn *net.UnixConn) {
	switch req.Query {
	case "layout":
		sendResponse(conn, Response{Layout: h.src.ShowPackedLayout()})
	case "unpacked":
		segs, err := h.src.UnpackedReencryptChainSegs(req.Chain)
		if err != nil {
			sendResponse(conn, Response{Err: err.Error()})
			return
		}
		sendResponse(conn, Response{UnpackedSegs: segs})
	default:
		sendResponse(conn, Response{Err: errors.New("unknown query: " + req.Query).Error()})
	}
}

func sendResponse(conn *net.UnixConn, resp Response) {
	out, err := json.Marshal(resp)
	if err != nil {
		tlog.Warn.Printf("xspctl: marshal failed: %v", err)
		return
	}
	out = append(out, '\n')
	if _, err := conn.Write(out); err != nil {
		tlog.Warn.Printf("xspctl: write failed: %v", err)
	}
}

// PeerCredentials are the identity of a Unix socket peer, as reported by
// the kernel (platform-specific implementations in peer_credentials_*.go).
type PeerCredentials struct {
	UID, GID, PID int
}

func clientIdentifier(conn *net.UnixConn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
