package net

import (
	"errors"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/gearedup/server/internal/net/packet"
)

// Discovery datagram kinds. Both carry the application identifier; the
// response adds the WebSocket port.
const (
	discoveryRequest  byte = 1
	discoveryResponse byte = 2

	maxDatagram = 512
)

// discovery is the UDP socket used for LAN discovery. On a server it is
// bound to the WebSocket port number; on a client it is ephemeral.
type discovery struct {
	conn      *net.UDPConn
	peer      *Peer
	tcpPort   int // 0 on clients
	closeOnce sync.Once
}

func listenDiscovery(p *Peer, addr *net.UDPAddr, tcpPort int) (*discovery, error) {
	uc, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	d := &discovery{conn: uc, peer: p, tcpPort: tcpPort}
	p.wg.Add(1)
	go d.readLoop()
	return d, nil
}

func encodeDiscovery(kind byte, appID string, port int) []byte {
	w := packet.NewWriter()
	w.WriteC(kind)
	w.WriteS(appID)
	if kind == discoveryResponse {
		w.WriteD(int32(port))
	}
	return w.Bytes()
}

func (d *discovery) readLoop() {
	defer d.peer.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			d.peer.log.Debug("discovery read error", zap.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		r := packet.NewReader(buf[:n])
		kind := byte(r.Tag())
		appID := r.ReadS()
		if r.Err() != nil || appID != d.peer.cfg.AppID {
			continue
		}

		switch {
		case kind == discoveryRequest && d.tcpPort > 0:
			d.peer.push(Incoming{Kind: KindDiscoveryRequest, Addr: from.String()})
		case kind == discoveryResponse && d.tcpPort == 0:
			port := r.ReadD()
			if r.Err() != nil || port <= 0 {
				continue
			}
			addr := net.JoinHostPort(from.IP.String(), strconv.Itoa(int(port)))
			d.peer.push(Incoming{Kind: KindDiscoveryResponse, Addr: addr})
		}
	}
}

func (d *discovery) send(addr string, data []byte) error {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	_, err = d.conn.WriteToUDP(data, ua)
	return err
}

func (d *discovery) close() {
	d.closeOnce.Do(func() { d.conn.Close() })
}

// Discover sends a discovery request to addr, which may be a broadcast
// address. Responses arrive as KindDiscoveryResponse items.
func (p *Peer) Discover(addr string) error {
	if !p.started.Load() || p.stopped.Load() {
		return ErrNotStarted
	}
	p.mu.Lock()
	if p.disc == nil {
		d, err := listenDiscovery(p, &net.UDPAddr{}, 0)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.disc = d
	}
	d := p.disc
	p.mu.Unlock()
	return d.send(addr, encodeDiscovery(discoveryRequest, p.cfg.AppID, 0))
}

// RespondDiscovery answers a discovery request from addr with this
// server's WebSocket port.
func (p *Peer) RespondDiscovery(addr string) error {
	p.mu.Lock()
	d := p.disc
	p.mu.Unlock()
	if d == nil || d.tcpPort == 0 {
		return ErrNotStarted
	}
	return d.send(addr, encodeDiscovery(discoveryResponse, p.cfg.AppID, d.tcpPort))
}
