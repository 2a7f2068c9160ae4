// Package webserver is the HTTP front end: it accepts G-code over
// rr_gcode, hands back replies over rr_reply and a websocket, serves
// the machine status poll, and exposes the file store for uploads and
// downloads. It feeds the dispatcher through the same one-byte-at-a-
// time source interface the serial link uses, so the dispatcher never
// knows which transport a command came from.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package webserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
)

const gcodeQueueSize = 4096

// Status is the machine snapshot returned by the status poll and
// pushed to websocket subscribers.
type Status struct {
	State           string    `json:"status"` // "I" idle, "P" printing, "S" stopped
	Heaters         []float64 `json:"heaters"`
	Active          []float64 `json:"active"`
	Pos             []float64 `json:"pos"`
	Probe           int       `json:"probe"`
	FanRPM          float64   `json:"fanRPM"`
	FractionPrinted float64   `json:"fraction_printed"`
	Tool            int       `json:"tool"`
	MachineName     string    `json:"myName"`
}

// StatusProvider supplies the snapshot; the top-level wiring implements
// it against the dispatcher and platform.
type StatusProvider interface {
	Status() Status
}

// Config holds server configuration.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string

	// WebRoot is the directory the interface pages are served from.
	WebRoot string

	// Password gates rr_connect. Empty means no password.
	Password string
}

// Server is the web front end.
type Server struct {
	logger  *log.Logger
	cfg     Config
	storage *platform.MassStorage
	status  StatusProvider
	estop   func()

	httpServer *http.Server

	// Inbound G-code, drained byte-wise by the dispatcher.
	gcodeQ chan byte

	// Accumulated replies, cleared by rr_reply.
	replyMu  sync.Mutex
	replyBuf strings.Builder

	wsUpgrader websocket.Upgrader
	wsClientMu sync.RWMutex
	wsClients  map[int64]*wsClient
	nextWSID   int64
}

// New creates a server. Start must be called to begin listening.
func New(cfg Config, storage *platform.MassStorage, status StatusProvider, estop func()) *Server {
	s := &Server{
		logger:    log.GetLogger("webserver"),
		cfg:       cfg,
		storage:   storage,
		status:    status,
		estop:     estop,
		gcodeQ:    make(chan byte, gcodeQueueSize),
		wsClients: make(map[int64]*wsClient),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

// SetStatusProvider wires the snapshot source in. The top level is
// built around the server, so this runs after New.
func (s *Server) SetStatusProvider(status StatusProvider) {
	s.status = status
}

// Handler returns the routed handler, also used directly by tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/rr_connect", s.handleConnect)
	mux.HandleFunc("/rr_gcode", s.handleGCode)
	mux.HandleFunc("/rr_reply", s.handleReply)
	mux.HandleFunc("/rr_status", s.handleStatus)
	mux.HandleFunc("/rr_files", s.handleFiles)
	mux.HandleFunc("/rr_upload", s.handleUpload)
	mux.HandleFunc("/rr_delete", s.handleDelete)
	mux.HandleFunc("/rr_download", s.handleDownload)
	mux.HandleFunc("/rr_estop", s.handleEstop)
	mux.HandleFunc("/ws", s.handleWebSocket)

	if s.cfg.WebRoot != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.WebRoot)))
	}

	return s.corsMiddleware(mux)
}

// Start begins serving. It returns when the listener stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}
	s.logger.Info("web interface listening on %s", s.cfg.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every websocket client.
func (s *Server) Stop() error {
	s.wsClientMu.Lock()
	for _, c := range s.wsClients {
		c.close()
	}
	s.wsClients = make(map[int64]*wsClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// GCodeAvailable reports queued command bytes.
func (s *Server) GCodeAvailable() bool {
	return len(s.gcodeQ) > 0
}

// ReadGCode pops one queued command byte.
func (s *Server) ReadGCode() byte {
	select {
	case c := <-s.gcodeQ:
		return c
	default:
		return 0
	}
}

// HandleReply takes a dispatcher reply: buffered for rr_reply and
// pushed to websocket subscribers.
func (s *Server) HandleReply(reply string) {
	if reply == "" {
		return
	}
	s.replyMu.Lock()
	s.replyBuf.WriteString(reply)
	s.replyBuf.WriteByte('\n')
	s.replyMu.Unlock()

	s.broadcast(map[string]any{"reply": reply})
}

// CanWrite and Write make the server the router's HTTP destination, so
// GenericMessage traffic reaches web clients too.
func (s *Server) CanWrite() int { return 1 << 16 }

func (s *Server) Write(p []byte) (int, error) {
	s.replyMu.Lock()
	s.replyBuf.Write(p)
	s.replyMu.Unlock()
	return len(p), nil
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	errCode := 0
	if s.cfg.Password != "" && r.URL.Query().Get("password") != s.cfg.Password {
		errCode = 1
	}
	s.writeJSON(w, map[string]any{"err": errCode})
}

// emergencyStopRequested scans an incoming script for M112. The stop
// must not wait its turn behind whatever the dispatcher is busy with,
// so the front end acts on it itself, on the same path rr_estop takes.
func emergencyStopRequested(script string) bool {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if len(line) > 1 && (line[0] == 'N' || line[0] == 'n') {
			if j := strings.IndexByte(line, ' '); j >= 0 {
				line = strings.TrimSpace(line[j+1:])
			}
		}
		if len(line) < 4 || (line[0] != 'M' && line[0] != 'm') || line[1:4] != "112" {
			continue
		}
		if len(line) == 4 || line[4] == ' ' || line[4] == '*' {
			return true
		}
	}
	return false
}

func (s *Server) handleGCode(w http.ResponseWriter, r *http.Request) {
	script := r.URL.Query().Get("gcode")
	if script == "" {
		http.Error(w, "missing gcode parameter", http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}
	if emergencyStopRequested(script) {
		s.logger.Warn("emergency stop received over HTTP")
		if s.estop != nil {
			s.estop()
		}
		s.writeJSON(w, map[string]any{"buff": gcodeQueueSize - len(s.gcodeQ)})
		return
	}
	for i := 0; i < len(script); i++ {
		select {
		case s.gcodeQ <- script[i]:
		default:
			http.Error(w, "command queue full", http.StatusServiceUnavailable)
			return
		}
	}
	s.writeJSON(w, map[string]any{"buff": gcodeQueueSize - len(s.gcodeQ)})
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	s.replyMu.Lock()
	text := s.replyBuf.String()
	s.replyBuf.Reset()
	s.replyMu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.status.Status())
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = platform.GCodeDir
	}
	names, err := s.storage.FileNames(dir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"files": names})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name parameter", http.StatusBadRequest)
		return
	}
	f := s.storage.OpenFile(platform.GCodeDir, name, true)
	if f == nil {
		http.Error(w, "cannot open file", http.StatusInternalServerError)
		return
	}
	buf := make([]byte, 4096)
	errCode := 0
	for {
		n, readErr := r.Body.Read(buf)
		if n > 0 {
			for _, c := range buf[:n] {
				if f.Write(c) != nil {
					errCode = 1
					break
				}
			}
		}
		if readErr != nil || errCode != 0 {
			break
		}
	}
	if f.Close() != nil {
		errCode = 1
	}
	s.writeJSON(w, map[string]any{"err": errCode})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name parameter", http.StatusBadRequest)
		return
	}
	errCode := 0
	if s.storage.Delete(platform.GCodeDir, name) != nil {
		errCode = 1
	}
	s.writeJSON(w, map[string]any{"err": errCode})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name parameter", http.StatusBadRequest)
		return
	}
	f := s.storage.OpenFile(platform.GCodeDir, name, false)
	if f == nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	buf := make([]byte, 0, 4096)
	for {
		c, more := f.Read()
		if !more {
			break
		}
		buf = append(buf, c)
		if len(buf) == cap(buf) {
			w.Write(buf)
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		w.Write(buf)
	}
}

func (s *Server) handleEstop(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("emergency stop requested over HTTP")
	if s.estop != nil {
		s.estop()
	}
	s.writeJSON(w, map[string]any{})
}

// corsMiddleware lets browser interfaces served from elsewhere talk to
// the machine.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
