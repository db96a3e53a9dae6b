package net

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxMessageSize = 1 << 20
	closeGrace     = time.Second
)

// conn is one WebSocket connection. Network I/O runs in a read and a
// write goroutine; the owning Peer only touches the out queue.
type conn struct {
	id   int64
	ws   *websocket.Conn
	peer *Peer

	out chan []byte // writer goroutine reads from here

	closeReq  chan struct{} // closed when a graceful close is requested
	reqOnce   sync.Once
	done      chan struct{} // closed once the socket is torn down
	doneOnce  sync.Once
	readDone  chan struct{}
	closed    atomic.Bool
	mu        sync.Mutex
	reason    string
	onRelease func()

	log *zap.Logger
}

func newConn(p *Peer, id int64, ws *websocket.Conn) *conn {
	return &conn{
		id:       id,
		ws:       ws,
		peer:     p,
		out:      make(chan []byte, p.cfg.OutQueueSize),
		closeReq: make(chan struct{}),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
		log:      p.log.With(zap.Int64("conn", id)),
	}
}

func (c *conn) setReason(reason string) {
	c.mu.Lock()
	if c.reason == "" {
		c.reason = reason
	}
	c.mu.Unlock()
}

func (c *conn) getReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// enqueue offers data to the writer. Reliable frames that do not fit
// disconnect the slow connection; unreliable frames are dropped.
func (c *conn) enqueue(data []byte, reliable bool) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.out <- data:
		return nil
	default:
	}
	if !reliable {
		c.peer.stats.dropped.Add(1)
		return nil
	}
	c.log.Warn("output queue full, dropping slow connection")
	c.setReason("output queue full")
	c.shutdown()
	return ErrQueueFull
}

// disconnect asks the writer to flush, send a close frame carrying
// reason, and tear the connection down.
func (c *conn) disconnect(reason string) {
	c.setReason(reason)
	c.reqOnce.Do(func() { close(c.closeReq) })
}

// shutdown closes the socket immediately.
func (c *conn) shutdown() {
	c.doneOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.ws.Close()
		if c.onRelease != nil {
			c.onRelease()
		}
	})
}

// readLoop runs in its own goroutine. It pushes every binary message onto
// the peer queue and reports the disconnect once the socket ends.
func (c *conn) readLoop() {
	defer c.peer.wg.Done()
	defer func() {
		close(c.readDone)
		c.shutdown()
		c.peer.detach(c)
		c.peer.push(Incoming{
			Kind:   KindStatusChanged,
			ConnID: c.id,
			Status: StatusDisconnected,
			Reason: c.getReason(),
		})
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.extendDeadline()
	c.ws.SetPongHandler(func(string) error { c.extendDeadline(); return nil })

	for {
		typ, payload, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			switch {
			case errors.As(err, &ce):
				c.setReason(ce.Text)
			case !c.closed.Load():
				c.log.Debug("read error", zap.Error(err))
				c.setReason("connection lost")
			}
			return
		}
		c.extendDeadline()
		if typ != websocket.BinaryMessage || len(payload) == 0 {
			continue
		}
		c.peer.stats.messagesIn.Add(1)
		c.peer.stats.bytesIn.Add(int64(len(payload)))
		if !c.peer.push(Incoming{Kind: KindData, ConnID: c.id, Payload: payload}) {
			return
		}
	}
}

func (c *conn) extendDeadline() {
	if t := c.peer.cfg.ReadTimeout; t > 0 {
		c.ws.SetReadDeadline(time.Now().Add(t))
	}
}

// writeLoop runs in its own goroutine. It writes queued frames in order,
// pings to keep the read deadline alive, and performs the close handshake.
func (c *conn) writeLoop() {
	defer c.peer.wg.Done()
	defer c.shutdown()

	var ping <-chan time.Time
	if t := c.peer.cfg.ReadTimeout; t > 0 {
		ticker := time.NewTicker(t / 2)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case data := <-c.out:
			if !c.writeOne(data) {
				return
			}
		case <-ping:
			deadline := time.Now().Add(c.peer.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		case <-c.closeReq:
			c.closeGracefully()
			return
		case <-c.done:
			return
		}
	}
}

func (c *conn) closeGracefully() {
	for len(c.out) > 0 {
		if !c.writeOne(<-c.out) {
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.getReason())
	c.ws.SetWriteDeadline(time.Now().Add(c.peer.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.CloseMessage, msg); err != nil {
		return
	}
	// Give the remote a chance to echo the close frame.
	select {
	case <-c.readDone:
	case <-time.After(closeGrace):
	}
}

func (c *conn) writeOne(data []byte) bool {
	c.ws.SetWriteDeadline(time.Now().Add(c.peer.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		if !c.closed.Load() {
			c.log.Debug("write error", zap.Error(err))
			c.setReason("connection lost")
		}
		return false
	}
	c.peer.stats.messagesOut.Add(1)
	c.peer.stats.bytesOut.Add(int64(len(data)))
	return true
}
