// Package hub implements the direct cross-process notification channel:
// an in-memory topic broker reachable over a unix socket with
// length-prefixed frames. The first process to bind the socket hosts the
// broker; every other process attaches as a client.
package hub

import (
	"io"
	"net"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
)

const handlerPoolSize = 64

// Server hosts the broker on a unix socket.
type Server struct {
	socketPath  string
	logger      *logger.Logger
	broker      *Broker
	listener    net.Listener
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
	connections map[net.Conn]bool
	connMu      sync.Mutex
	handlers    *ants.Pool // bounds concurrent connection handlers
}

func NewServer(socketPath string, log *logger.Logger) *Server {
	return &Server{
		socketPath:  socketPath,
		logger:      log,
		broker:      NewBroker(),
		connections: make(map[net.Conn]bool),
	}
}

// Broker exposes the in-memory broker for in-process subscribers (the
// hosting session attaches directly instead of dialing itself).
func (s *Server) Broker() *Broker {
	return s.broker
}

// Start binds the unix socket and begins accepting connections. The caller
// is responsible for clearing a stale socket file first.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}

	pool, err := ants.NewPool(handlerPoolSize)
	if err != nil {
		listener.Close()
		return err
	}

	s.listener = listener
	s.handlers = pool
	s.running = true

	s.logger.Info("hub listening on %s", s.socketPath)
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and all live connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	s.connMu.Lock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	if s.handlers != nil {
		s.handlers.Release()
	}
	s.logger.Info("hub stopped")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			s.logger.Error("hub accept: %v", err)
			continue
		}

		s.connMu.Lock()
		s.connections[conn] = true
		s.connMu.Unlock()

		s.wg.Add(1)
		handle := func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}
		if err := s.handlers.Submit(handle); err != nil {
			go handle()
		}
	}
}

// connSubscriber streams broker messages to one subscribed connection.
type connSubscriber struct {
	conn    net.Conn
	writeMu sync.Mutex
	logger  *logger.Logger
}

func (cs *connSubscriber) Send(topic string, payload []byte) {
	body, err := EncodeMessage(topic, payload)
	if err != nil {
		cs.logger.Error("hub encode message: %v", err)
		return
	}
	cs.writeMu.Lock()
	err = writeFrame(cs.conn, body)
	cs.writeMu.Unlock()
	if err != nil {
		// Dead subscriber; closing the conn unblocks its read loop, which
		// performs the unsubscribe.
		cs.conn.Close()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	subscriptions := make(map[string]*connSubscriber)
	defer func() {
		for topic, sub := range subscriptions {
			s.broker.Unsubscribe(topic, sub)
		}
		conn.Close()
		s.connMu.Lock()
		delete(s.connections, conn)
		s.connMu.Unlock()
	}()

	for {
		data, err := readFrame(conn)
		if err != nil {
			if err != io.EOF && err != net.ErrClosed {
				s.logger.Debug("hub connection read: %v", err)
			}
			return
		}

		cmd, topic, payload, err := DecodeCommand(data)
		if err != nil {
			s.logger.Error("hub decode request: %v", err)
			return
		}

		switch cmd {
		case CmdPublish:
			s.broker.Publish(topic, payload)
		case CmdSubscribe:
			if _, ok := subscriptions[topic]; ok {
				continue
			}
			sub := &connSubscriber{conn: conn, logger: s.logger}
			subscriptions[topic] = sub
			s.broker.Subscribe(topic, sub)
		default:
			s.logger.Warn("hub unknown command %d", cmd)
		}
	}
}
