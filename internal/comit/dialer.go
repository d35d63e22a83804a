package comit

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/klingon-exchange/cnd/pkg/logging"
)

// Dialer resolves a peer address — (PeerId, optional Multiaddr hints) —
// into a live connection, queuing concurrent dial attempts for the same
// peer so a burst of requests to an unconnected peer triggers exactly one
// dial.
type Dialer struct {
	host host.Host
	log  *logging.Logger

	mu      sync.Mutex
	pending map[peer.ID]chan error
}

func NewDialer(h host.Host) *Dialer {
	return &Dialer{
		host:    h,
		log:     logging.GetDefault().Component("comit-dialer"),
		pending: make(map[peer.ID]chan error),
	}
}

// EnsureConnected returns immediately if already connected. Otherwise it
// dials using hints, most-recent-first: hints are tried in the order
// given, which callers should populate with the most recently known-good
// address first.
func (d *Dialer) EnsureConnected(ctx context.Context, p peer.ID, hints []multiaddr.Multiaddr) error {
	if d.host.Network().Connectedness(p) == network.Connected {
		return nil
	}

	d.mu.Lock()
	if wait, inFlight := d.pending[p]; inFlight {
		d.mu.Unlock()
		select {
		case err := <-wait:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan error, 1)
	d.pending[p] = done
	d.mu.Unlock()

	err := d.dial(ctx, p, hints)

	d.mu.Lock()
	delete(d.pending, p)
	d.mu.Unlock()
	done <- err
	close(done)
	return err
}

func (d *Dialer) dial(ctx context.Context, p peer.ID, hints []multiaddr.Multiaddr) error {
	if len(hints) == 0 {
		if err := d.host.Connect(ctx, peer.AddrInfo{ID: p}); err != nil {
			return fmt.Errorf("connect (no hints, relying on peerstore): %w", err)
		}
		return nil
	}

	var lastErr error
	for _, addr := range hints {
		info := peer.AddrInfo{ID: p, Addrs: []multiaddr.Multiaddr{addr}}
		if err := d.host.Connect(ctx, info); err != nil {
			lastErr = err
			d.log.Debug("dial hint failed, trying next", "peer", p, "addr", addr, "error", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("all %d address hints failed, last error: %w", len(hints), lastErr)
}
