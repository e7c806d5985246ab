// Package introspect broadcasts VM execution events to attached debug
// clients over a websocket, implementing vm.Hook. Grounded in the
// teacher's internal/debugger (a DebugHook interface attached to the VM)
// and internal/network's gorilla/websocket server pattern.
package introspect

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sentra/internal/bytecode"
	"sentra/internal/object"
)

// Event is one broadcast frame. Kind is "instruction", "call", or "return".
type Event struct {
	Session string      `json:"session"`
	Kind    string      `json:"kind"`
	IP      int         `json:"ip,omitempty"`
	Opcode  string      `json:"opcode,omitempty"`
	Func    string      `json:"func,omitempty"`
	NumArgs int         `json:"num_args,omitempty"`
	Value   string      `json:"value,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is a run-time inspector. It implements vm.Hook; passing a *Server
// as a VM's Hook field makes every instruction, call, and return fetch
// broadcast to whatever is connected to its websocket endpoint. A run with
// no attached clients still pays the cost of the JSON marshal per event —
// callers that don't need inspection should leave Hook nil instead.
type Server struct {
	Session string

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewServer creates an inspector with a fresh session ID.
func NewServer() *Server {
	return &Server{
		Session: uuid.New().String(),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Handler serves ws://<host>/debug/<session>, registering the connecting
// client to receive this server's broadcasts until it disconnects.
func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("introspect: upgrade failed: %v", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) broadcast(e Event) {
	e.Session = s.Session
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	}
}

// OnInstruction implements vm.Hook.
func (s *Server) OnInstruction(ip int, op bytecode.OpCode) {
	def, err := bytecode.Lookup(byte(op))
	name := "UNKNOWN"
	if err == nil {
		name = def.Name
	}
	s.broadcast(Event{Kind: "instruction", IP: ip, Opcode: name})
}

// OnCall implements vm.Hook.
func (s *Server) OnCall(fn *object.CompiledFunction, numArgs int) {
	name := fn.Name
	if name == "" {
		name = "anonymous"
	}
	s.broadcast(Event{Kind: "call", Func: name, NumArgs: numArgs})
}

// OnReturn implements vm.Hook.
func (s *Server) OnReturn(value object.Value) {
	v := "null"
	if value != nil {
		v = value.Inspect()
	}
	s.broadcast(Event{Kind: "return", Value: v})
}
