// WebSocket push channel
//
// Clients get every dispatcher reply as it happens and a status
// snapshot at a steady rate, instead of polling rr_reply/rr_status.
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package webserver

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsSendQueue     = 64
	wsWriteTimeout  = 10 * time.Second
	wsPongTimeout   = 60 * time.Second
	wsPingInterval  = 30 * time.Second
	wsStatusPeriod  = 250 * time.Millisecond
	wsMaxMessageLen = 64 * 1024
)

type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade: %v", err)
		return
	}

	c := &wsClient{
		id:     atomic.AddInt64(&s.nextWSID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, wsSendQueue),
		done:   make(chan struct{}),
	}

	s.wsClientMu.Lock()
	s.wsClients[c.id] = c
	s.wsClientMu.Unlock()
	s.logger.Debug("websocket client %d connected", c.id)

	go c.writePump()
	c.readPump()
}

// send queues a message, dropping it if the client cannot keep up.
func (c *wsClient) send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.Debug("dropping message to websocket client %d", c.id)
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

// readPump consumes the connection until it drops. Inbound frames are
// G-code scripts, queued like rr_gcode requests.
func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(wsMaxMessageLen)
	c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket read: %v", err)
			}
			return
		}
		script := string(message)
		if script == "" {
			continue
		}
		if script[len(script)-1] != '\n' {
			script += "\n"
		}
		if emergencyStopRequested(script) {
			c.server.logger.Warn("emergency stop received over websocket")
			if c.server.estop != nil {
				c.server.estop()
			}
			continue
		}
		for i := 0; i < len(script); i++ {
			select {
			case c.server.gcodeQ <- script[i]:
			default:
				c.send(map[string]any{"error": "command queue full"})
				return
			}
		}
	}
}

func (c *wsClient) writePump() {
	ping := time.NewTicker(wsPingInterval)
	status := time.NewTicker(wsStatusPeriod)
	defer func() {
		ping.Stop()
		status.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debug("websocket write: %v", err)
				return
			}

		case <-status.C:
			if c.server.status == nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(c.server.status.Status()); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (s *Server) removeClient(c *wsClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, c.id)
	s.wsClientMu.Unlock()
	s.logger.Debug("websocket client %d disconnected", c.id)
}

// broadcast fans a message out to every connected client.
func (s *Server) broadcast(msg any) {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	for _, c := range s.wsClients {
		c.send(msg)
	}
}
