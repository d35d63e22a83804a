package comit

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/klingon-exchange/cnd/internal/rfc003"
	"github.com/klingon-exchange/cnd/pkg/logging"
)

// SwapProtocol is the libp2p protocol ID for the RFC003 request/response
// exchange. Unlike the teacher's direct-messaging protocol, a single
// substream carries exactly one request and its one response, then
// closes — there is no separate ACK frame.
const SwapProtocol protocol.ID = "/comit/swap/1.0.0"

const (
	maxFrameSize  = 1 << 20 // 1MB
	writeDeadline = 30 * time.Second
	readDeadline  = 60 * time.Second
)

// RequestHandler decides how to respond to an inbound SWAP request. It
// returns the Response to send back over the same substream.
type RequestHandler func(ctx context.Context, from peer.ID, req rfc003.Request) rfc003.Response

// Transport drives the RFC003 substream behaviour: registers the inbound
// stream handler, and opens outbound substreams for requests this node
// initiates, queuing them behind the Dialer when a peer isn't yet
// connected.
type Transport struct {
	host    host.Host
	dialer  *Dialer
	log     *logging.Logger
	handler RequestHandler

	mu sync.Mutex
}

// NewTransport wires a Transport to a libp2p host. Call SetRequestHandler
// before Start if this node will ever act as Bob.
func NewTransport(h host.Host) *Transport {
	return &Transport{
		host:   h,
		dialer: NewDialer(h),
		log:    logging.GetDefault().Component("comit-transport"),
	}
}

// SetRequestHandler installs the function invoked for every inbound SWAP
// request.
func (t *Transport) SetRequestHandler(handler RequestHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Start registers the protocol handler with the libp2p host.
func (t *Transport) Start() {
	t.host.SetStreamHandler(SwapProtocol, t.handleStream)
}

// Stop deregisters the protocol handler.
func (t *Transport) Stop() {
	t.host.RemoveStreamHandler(SwapProtocol)
}

func (t *Transport) handleStream(s network.Stream) {
	defer s.Close()

	remote := s.Conn().RemotePeer()
	s.SetReadDeadline(time.Now().Add(readDeadline))

	raw, err := readFrame(bufio.NewReader(s))
	if err != nil {
		t.log.Warn("failed to read request frame", "peer", remote, "error", err)
		return
	}

	req, err := rfc003.DecodeRequest(raw)
	if err != nil {
		// Unknown mandatory header: hard failure, close without responding.
		t.log.Warn("malformed request, closing substream", "peer", remote, "error", err)
		return
	}

	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		t.log.Warn("no request handler installed, dropping request", "peer", remote, "swap_id", req.Headers.ID)
		return
	}

	resp := handler(context.Background(), remote, req)
	resp.ID = req.Headers.ID

	respRaw, err := rfc003.EncodeResponse(resp)
	if err != nil {
		t.log.Warn("failed to encode response", "error", err)
		return
	}

	s.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := writeFrame(s, respRaw); err != nil {
		t.log.Warn("failed to write response", "peer", remote, "error", err)
	}
}

// SendRequest opens a substream to peerID (dialing via hints if not yet
// connected), sends req, and blocks for the response. The read side of
// the exchange is resolved through a ResponseChannel: a stream that
// closes, times out, or carries a malformed frame before ever yielding a
// decoded Response resolves it via Close, surfacing ErrConnection to the
// caller exactly as "closed without a reply" is documented to.
func (t *Transport) SendRequest(ctx context.Context, peerID peer.ID, hints []multiaddr.Multiaddr, req rfc003.Request) (rfc003.Response, error) {
	if err := t.dialer.EnsureConnected(ctx, peerID, hints); err != nil {
		return rfc003.Response{}, fmt.Errorf("comit: dial %s: %w", peerID, err)
	}

	s, err := t.host.NewStream(ctx, peerID, SwapProtocol)
	if err != nil {
		return rfc003.Response{}, fmt.Errorf("comit: open substream: %w", err)
	}
	defer s.Close()

	raw, err := rfc003.EncodeRequest(req)
	if err != nil {
		return rfc003.Response{}, fmt.Errorf("comit: encode request: %w", err)
	}

	s.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := writeFrame(s, raw); err != nil {
		return rfc003.Response{}, fmt.Errorf("comit: send request: %w", err)
	}

	s.SetReadDeadline(time.Now().Add(readDeadline))
	rc := NewResponseChannel[rfc003.Response]()
	go func() {
		respRaw, err := readFrame(bufio.NewReader(s))
		if err != nil {
			t.log.Warn("response stream closed without a reply", "peer", peerID, "error", err)
			rc.Close()
			return
		}
		resp, err := rfc003.DecodeResponse(respRaw)
		if err != nil {
			t.log.Warn("malformed response, treating as closed without a reply", "peer", peerID, "error", err)
			rc.Close()
			return
		}
		rc.Send(resp)
	}()

	resp, err := rc.Recv()
	if err != nil {
		return rfc003.Response{}, fmt.Errorf("comit: read response: %w", err)
	}
	return resp, nil
}

// readFrame and writeFrame implement the same 4-byte-big-endian length
// prefix the teacher's direct-message stream handler uses.

func readFrame(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("frame too large: %d > %d", length, maxFrameSize)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame too large: %d > %d", len(data), maxFrameSize)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}
