package signaling

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/silk/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var log = util.NewLogger("signaling")

// Server is a signaling hub with a client/server topology. Each URL path is
// a separate room. The first peer to join a room is its host; every later
// peer is introduced to the host only, and the host initiates the WebRTC
// offer.
type Server struct {
	mu    sync.Mutex
	rooms map[string]*room

	listener net.Listener
	http     *http.Server
}

type room struct {
	host    string
	members map[string]*member
}

type member struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes to the member's WebSocket, guarded by a mutex.
func (m *member) send(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn.WriteJSON(msg)
}

// NewServer creates an empty signaling hub.
func NewServer() *Server {
	return &Server{rooms: make(map[string]*room)}
}

// Handler returns the WebSocket endpoint. Every path is accepted and names
// a room.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWS)
}

// Start begins listening on addr (":0" picks a random port). Returns the
// bound port.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start signaling server: %w", err)
	}
	s.listener = listener
	s.http = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("serve: %v", err)
		}
	}()

	return listener.Addr().(*net.TCPAddr).Port, nil
}

// Close stops the listener and drops every connected peer.
func (s *Server) Close() error {
	var err error
	if s.http != nil {
		err = s.http.Close()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		for _, m := range r.members {
			m.conn.Close()
		}
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	m := &member{id: uuid.New().String(), conn: conn}
	roomName := r.URL.Path

	// Hold m.mu across join so nothing reaches m before its own id.
	m.mu.Lock()
	s.join(roomName, m)
	err = m.conn.WriteJSON(Message{Type: MsgTypeIDAssigned, Peer: m.id})
	m.mu.Unlock()
	defer s.leave(roomName, m)
	if err != nil {
		return
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			log.Debug("peer %s left: %v", m.id, err)
			return
		}
		if !msg.relayed() {
			log.Debug("ignoring %q from %s", msg.Type, m.id)
			continue
		}
		s.relay(roomName, m.id, msg)
	}
}

// join adds m to the room. The first member becomes host; later members
// are announced to the host.
func (s *Server) join(roomName string, m *member) {
	s.mu.Lock()
	r, ok := s.rooms[roomName]
	if !ok {
		r = &room{members: make(map[string]*member)}
		s.rooms[roomName] = r
	}
	r.members[m.id] = m

	var host *member
	if r.host == "" {
		r.host = m.id
		log.Info("peer %s is host of room %q", m.id, roomName)
	} else {
		host = r.members[r.host]
	}
	s.mu.Unlock()

	if host != nil {
		if err := host.send(Message{Type: MsgTypeNewPeer, Peer: m.id}); err != nil {
			log.Warning("failed to announce %s to host: %v", m.id, err)
		}
	}
}

// leave removes m from the room and tells the peers that could see it.
// A room whose host leaves is closed: every remaining member is told and
// disconnected, so they can rejoin and elect a new host.
func (s *Server) leave(roomName string, m *member) {
	s.mu.Lock()
	r, ok := s.rooms[roomName]
	if !ok || r.members[m.id] != m {
		s.mu.Unlock()
		return
	}
	delete(r.members, m.id)

	var notify []*member
	hostLeft := r.host == m.id
	if hostLeft {
		for _, other := range r.members {
			notify = append(notify, other)
		}
		delete(s.rooms, roomName)
	} else if host, ok := r.members[r.host]; ok {
		notify = append(notify, host)
	}
	if len(r.members) == 0 {
		delete(s.rooms, roomName)
	}
	s.mu.Unlock()

	for _, other := range notify {
		// Best-effort: the receiver may be leaving too.
		_ = other.send(Message{Type: MsgTypePeerLeft, Peer: m.id})
		if hostLeft {
			other.conn.Close()
		}
	}
	if hostLeft {
		log.Info("host %s left, closed room %q", m.id, roomName)
	}
}

// relay forwards msg to its target within the same room.
func (s *Server) relay(roomName, from string, msg Message) {
	s.mu.Lock()
	var target *member
	if r, ok := s.rooms[roomName]; ok {
		target = r.members[msg.To]
	}
	s.mu.Unlock()

	if target == nil {
		log.Debug("dropping %q from %s: no peer %q", msg.Type, from, msg.To)
		return
	}

	msg.From = from
	if err := target.send(msg); err != nil {
		log.Warning("relay %q to %s failed: %v", msg.Type, msg.To, err)
	}
}
