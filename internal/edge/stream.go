// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/auraswarm/swarmctl/internal/identity"
)

// handleStream implements the six-step stream-proxy lifecycle of
// §4.5. withAuth has already handled step 2's bearer extraction; this
// handler does the rest: load+check the session, resolve the agent
// endpoint, dial the agent as a WebSocket client, accept the browser's
// upgrade, then forward frames bidirectionally under the per-
// connection limits and per-owner fairness cap.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, claims identity.Claims) {
	sessionID, ok := parseSessionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid", "malformed session_id")
		return
	}
	session, err := s.core.GetSession(r.Context(), claims.OwnerID, sessionID)
	if err != nil {
		s.writeControlError(w, err)
		return
	}

	if !s.fairness.Acquire(claims.OwnerID) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many concurrent streaming connections for this owner")
		return
	}
	defer s.fairness.Release(claims.OwnerID)

	endpoint, err := s.core.ResolveAgentEndpoint(r.Context(), session.AgentID)
	if err != nil {
		s.writeControlError(w, err)
		return
	}

	clientKey := r.Header.Get("Sec-WebSocket-Key")
	if clientKey == "" || !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		writeError(w, http.StatusBadRequest, "invalid", "missing or malformed websocket upgrade headers")
		return
	}

	// Step 4: dial the agent's /chat endpoint as a streaming client
	// before accepting the browser's upgrade — if the agent is
	// unreachable, the browser still gets an ordinary HTTP error
	// rather than a hijacked-then-abandoned connection.
	agentConn, agentReader, err := dialAgentChat(endpoint)
	if err != nil {
		s.logger.Warn("edge: dialing agent chat endpoint failed", "agent_id", session.AgentID.String(), "error", err)
		writeError(w, http.StatusBadGateway, "upstream", "agent endpoint did not accept the stream")
		return
	}
	defer agentConn.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming not supported by this server")
		return
	}
	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		s.logger.Error("edge: hijacking client connection failed", "error", err)
		return
	}
	defer clientConn.Close()

	accept := computeAcceptKey(clientKey)
	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := clientBuf.WriteString(response); err != nil {
		return
	}
	if err := clientBuf.Flush(); err != nil {
		return
	}

	s.forwardStream(clientConn, clientBuf.Reader, agentConn, agentReader, session.AgentID.String())
}

// dialAgentChat performs the client side of the RFC 6455 handshake
// against the agent pod's /chat endpoint, returning the raw
// connection and a buffered reader positioned right after the
// response headers (any bytes the agent sent early are preserved).
func dialAgentChat(endpoint string) (net.Conn, *bufio.Reader, error) {
	conn, err := net.Dial("tcp", endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing agent endpoint %s: %w", endpoint, err)
	}

	key, err := newClientKey()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	request := "GET /chat HTTP/1.1\r\n" +
		"Host: " + endpoint + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + key + "\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := conn.Write([]byte(request)); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("sending agent handshake: %w", err)
	}

	reader := bufio.NewReader(conn)
	response, err := http.ReadResponse(reader, nil)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("reading agent handshake response: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusSwitchingProtocols {
		conn.Close()
		return nil, nil, fmt.Errorf("agent handshake returned status %d", response.StatusCode)
	}
	if response.Header.Get("Sec-WebSocket-Accept") != computeAcceptKey(key) {
		conn.Close()
		return nil, nil, fmt.Errorf("agent handshake returned an unexpected accept key")
	}
	return conn, reader, nil
}

// forwardStream runs the two concurrent forwarding tasks of §4.5 step
// 5: client→agent and agent→client. Close on either side propagates
// to the other; the first task to finish triggers both connections'
// closure, unblocking the survivor — the same "first side to finish
// closes both" shape as the teacher's observation relay and
// lib/netutil.BridgeReaders, generalized from raw byte copying to
// framed messages with rate limiting and size/idle enforcement.
func (s *Server) forwardStream(clientConn net.Conn, clientReader *bufio.Reader, agentConn net.Conn, agentReader *bufio.Reader, agentID string) {
	done := make(chan struct{})
	var once sync.Once
	triggerDone := func() { once.Do(func() { close(done) }) }

	limiter := newInboundLimiter()

	var wg sync.WaitGroup
	wg.Add(3)

	// client → agent, rate-limited.
	go func() {
		defer wg.Done()
		defer triggerDone()
		for {
			frame, err := readWSFrame(clientReader, true)
			if err != nil {
				return
			}
			clientConn.SetReadDeadline(s.clock.Now().Add(streamIdleTimeout))
			if frame.opcode == wsOpClose {
				return
			}
			if frame.opcode == wsOpPing || frame.opcode == wsOpPong {
				continue
			}
			if !limiter.Allow() {
				errFrame := []byte(`{"type":"error","message":"rate limit exceeded, message dropped"}`)
				_ = writeWSFrame(clientConn, wsOpText, errFrame, false)
				continue
			}
			if err := writeWSFrame(agentConn, frame.opcode, frame.payload, true); err != nil {
				return
			}
		}
	}()

	// agent → client.
	go func() {
		defer wg.Done()
		defer triggerDone()
		for {
			frame, err := readWSFrame(agentReader, false)
			if err != nil {
				return
			}
			agentConn.SetReadDeadline(s.clock.Now().Add(streamIdleTimeout))
			if frame.opcode == wsOpClose {
				return
			}
			if frame.opcode == wsOpPing {
				_ = writeWSFrame(agentConn, wsOpPong, frame.payload, true)
				continue
			}
			if frame.opcode == wsOpPong {
				continue
			}
			if err := writeWSFrame(clientConn, frame.opcode, frame.payload, false); err != nil {
				return
			}
		}
	}()

	// keepalive pings to the browser client, per §4.5's 30s cadence.
	go func() {
		defer wg.Done()
		ticker := s.clock.NewTicker(streamKeepalivePing)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := writeWSFrame(clientConn, wsOpPing, nil, false); err != nil {
					triggerDone()
					return
				}
			}
		}
	}()

	clientConn.SetReadDeadline(s.clock.Now().Add(streamIdleTimeout))
	agentConn.SetReadDeadline(s.clock.Now().Add(streamIdleTimeout))

	<-done
	clientConn.Close()
	agentConn.Close()
	wg.Wait()

	s.logger.Info("edge: stream closed", "agent_id", agentID)
}
