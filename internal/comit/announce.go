package comit

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/klingon-exchange/cnd/internal/rfc003"
	"github.com/klingon-exchange/cnd/pkg/logging"
)

// AnnounceTopic is the gossip topic proposed swaps are optionally
// broadcast on for discovery. This is purely additive: the RFC003
// request/accept/decline exchange itself always happens over the direct
// substream in transport.go, never over pubsub.
const AnnounceTopic = "/comit/swap/announce/1.0.0"

// Announcer gossips Proposed swaps so peers not already known to each
// other can discover a counterparty's open offer.
type Announcer struct {
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	log   *logging.Logger
}

// NewAnnouncer joins AnnounceTopic on the given PubSub instance.
func NewAnnouncer(ctx context.Context, ps *pubsub.PubSub) (*Announcer, error) {
	topic, err := ps.Join(AnnounceTopic)
	if err != nil {
		return nil, fmt.Errorf("comit: join announce topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return nil, fmt.Errorf("comit: subscribe announce topic: %w", err)
	}
	return &Announcer{topic: topic, sub: sub, log: logging.GetDefault().Component("comit-announce")}, nil
}

// Announce gossips a proposed swap's headers (never the secret hash's
// preimage, obviously, since the hash itself is already public).
func (a *Announcer) Announce(ctx context.Context, headers rfc003.Headers) error {
	raw, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("comit: marshal announcement: %w", err)
	}
	return a.topic.Publish(ctx, raw)
}

// Announcements returns a channel of announced headers from other peers.
// The channel is closed when ctx is cancelled.
func (a *Announcer) Announcements(ctx context.Context) <-chan rfc003.Headers {
	out := make(chan rfc003.Headers, 16)
	go func() {
		defer close(out)
		for {
			msg, err := a.sub.Next(ctx)
			if err != nil {
				return // context cancelled or subscription cancelled
			}
			var headers rfc003.Headers
			if err := json.Unmarshal(msg.Data, &headers); err != nil {
				a.log.Debug("dropping malformed announcement", "error", err)
				continue
			}
			select {
			case out <- headers:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close cancels the subscription and leaves the topic.
func (a *Announcer) Close() {
	a.sub.Cancel()
	a.topic.Close()
}
