package comit

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	connmgr "github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"
)

const identityKeyFile = "identity.key"

// NewHost builds the libp2p host a Transport and Announcer run on:
// persistent Ed25519 identity under dataDir, the given listen multiaddrs,
// NAT traversal and hole punching enabled, and a bounded connection
// manager. No DHT is wired — peer discovery here is always by explicit
// (PeerId, Multiaddr) hint, never by routing table lookup.
func NewHost(dataDir string, listen []string) (host.Host, error) {
	priv, err := loadOrCreateIdentity(dataDir)
	if err != nil {
		return nil, fmt.Errorf("comit: load identity: %w", err)
	}

	addrs := make([]multiaddr.Multiaddr, 0, len(listen))
	for _, l := range listen {
		ma, err := multiaddr.NewMultiaddr(l)
		if err != nil {
			return nil, fmt.Errorf("comit: invalid listen address %q: %w", l, err)
		}
		addrs = append(addrs, ma)
	}

	cm, err := connmgr.NewConnManager(64, 256)
	if err != nil {
		return nil, fmt.Errorf("comit: connection manager: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrs(addrs...),
		libp2p.ConnectionManager(cm),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
		libp2p.NATPortMap(),
		libp2p.EnableRelay(),
		libp2p.EnableHolePunching(),
	)
	if err != nil {
		return nil, fmt.Errorf("comit: create libp2p host: %w", err)
	}
	return h, nil
}

// NewPubSub wraps a host with gossipsub, the transport Announcer gossips
// swap proposals over.
func NewPubSub(ctx context.Context, h host.Host) (*pubsub.PubSub, error) {
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("comit: create gossipsub: %w", err)
	}
	return ps, nil
}

func loadOrCreateIdentity(dataDir string) (crypto.PrivKey, error) {
	path := filepath.Join(dataDir, identityKeyFile)

	if data, err := os.ReadFile(path); err == nil {
		return crypto.UnmarshalPrivateKey(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal identity key: %w", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return priv, nil
}
