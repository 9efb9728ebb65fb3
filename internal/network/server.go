package network

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

type Handler func(ctx context.Context, addr *net.UDPAddr, env Envelope)

// writeTimeout is the socket write deadline §5 calls for: a send that can't
// complete within this window is treated the same as a hard failure.
const writeTimeout = 30 * time.Second

type Server struct {
	conn    *net.UDPConn
	logger  *log.Logger
	maxSize int
	seq     atomic.Uint64

	mu       sync.RWMutex
	handlers map[MessageType][]Handler

	dropMu  sync.Mutex
	dropped map[string]bool
}

func Listen(listenAddr string, logger *log.Logger, maxSize int) (*Server, error) {
	if maxSize <= 0 {
		maxSize = 64 * 1024
	}
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "network", log.LstdFlags|log.Lmicroseconds)
	}
	return &Server{
		conn:     conn,
		logger:   logger,
		maxSize:  maxSize,
		handlers: make(map[MessageType][]Handler),
		dropped:  make(map[string]bool),
	}, nil
}

func (s *Server) Close() error {
	return s.conn.Close()
}

func (s *Server) Register(msgType MessageType, handler Handler) {
	s.mu.Lock()
	s.handlers[msgType] = append(s.handlers[msgType], handler)
	s.mu.Unlock()
}

func (s *Server) Serve(ctx context.Context) error {
	buffer := make([]byte, s.maxSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if nErr, ok := err.(net.Error); ok && nErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		payload := make([]byte, n)
		copy(payload, buffer[:n])

		env, err := Decode(payload)
		if err != nil {
			s.logger.Printf("decode message from %s: %v", addr, err)
			continue
		}

		handlers := s.handlersFor(env.Type)
		if len(handlers) == 0 {
			continue
		}

		for _, handler := range handlers {
			h := handler
			go h(ctx, addr, env)
		}
	}
}

func (s *Server) handlersFor(msgType MessageType) []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Handler(nil), s.handlers[msgType]...)
}

// Send writes one envelope to addr, subject to writeTimeout. A write that
// fails (including timing out) is logged once and addr's channel is marked
// dropped (§5: "failed writes are logged and the channel is dropped, but do
// not cascade into thread panics") — further Send calls to the same addr
// fail fast without touching the socket.
func (s *Server) Send(addr string, msg MessageType, payload any) error {
	if s.isDropped(addr) {
		return fmt.Errorf("send to %s: channel dropped after prior write failure", addr)
	}

	target, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	data, err := s.prepare(msg, payload)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := s.conn.WriteToUDP(data, target); err != nil {
		s.drop(addr)
		s.logger.Printf("write to %s failed, dropping channel: %v", addr, err)
		return fmt.Errorf("write to %s: %w", addr, err)
	}
	return nil
}

func (s *Server) isDropped(addr string) bool {
	s.dropMu.Lock()
	defer s.dropMu.Unlock()
	return s.dropped[addr]
}

func (s *Server) drop(addr string) {
	s.dropMu.Lock()
	s.dropped[addr] = true
	s.dropMu.Unlock()
}

func (s *Server) prepare(msgType MessageType, payload any) ([]byte, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Seq:       s.seq.Add(1),
		Payload:   raw,
	}
	return Encode(env)
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("null"), nil
	case []byte:
		return p, nil
	default:
		return jsonMarshal(payload)
	}
}

func jsonMarshal(v any) ([]byte, error) {
	type marshaler interface {
		MarshalJSON() ([]byte, error)
	}
	if m, ok := v.(marshaler); ok {
		return m.MarshalJSON()
	}
	return json.Marshal(v)
}

// Client is the lightweight counterpart to Server used on the client side
// of the connection (§5's client-recv/send threads): it shares the same
// Envelope framing and sequence counter but dials a single fixed peer
// instead of listening for many.
type Client struct {
	conn   *net.UDPConn
	seq    atomic.Uint64
	logger *log.Logger

	dropMu  sync.Mutex
	dropped bool
}

// Dial opens a UDP socket connected to serverAddr.
func Dial(serverAddr string, logger *log.Logger) (*Client, error) {
	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "network-client", log.LstdFlags|log.Lmicroseconds)
	}
	return &Client{conn: conn, logger: logger}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Send writes one envelope to the dialed peer, subject to writeTimeout. Once
// a write fails the client's channel is dropped for good, matching Server's
// per-destination behavior (§5).
func (c *Client) Send(msg MessageType, payload any) error {
	c.dropMu.Lock()
	dropped := c.dropped
	c.dropMu.Unlock()
	if dropped {
		return fmt.Errorf("send: channel dropped after prior write failure")
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:      msg,
		Timestamp: time.Now().UTC(),
		Seq:       c.seq.Add(1),
		Payload:   raw,
	}
	data, err := Encode(env)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		c.dropMu.Lock()
		c.dropped = true
		c.dropMu.Unlock()
		c.logger.Printf("write failed, dropping channel: %v", err)
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Recv blocks (subject to ctx) for the next envelope from the dialed peer.
func (c *Client) Recv(ctx context.Context, maxSize int) (Envelope, error) {
	if maxSize <= 0 {
		maxSize = 64 * 1024
	}
	buffer := make([]byte, maxSize)
	for {
		if ctx.Err() != nil {
			return Envelope{}, ctx.Err()
		}
		c.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, err := c.conn.Read(buffer)
		if err != nil {
			if nErr, ok := err.(net.Error); ok && nErr.Timeout() {
				continue
			}
			return Envelope{}, err
		}
		return Decode(buffer[:n])
	}
}
