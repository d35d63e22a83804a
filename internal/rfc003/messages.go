// Package rfc003 defines the swap request/accept/decline wire protocol:
// a headered JSON frame over a persistent peer connection.
package rfc003

import (
	"encoding/json"
	"fmt"

	"github.com/klingon-exchange/cnd/internal/ledger"
)

// FrameType tags the top-level shape of a frame.
type FrameType string

const (
	FrameRequest  FrameType = "REQUEST"
	FrameResponse FrameType = "RESPONSE"
	FrameError    FrameType = "ERROR"
)

// ProtocolID is the mandatory "protocol" header value for RFC003 requests.
const ProtocolID = "comit-rfc-003"

// HashFunction is the only supported hash function; carried as a protocol
// parameter so the header is self-describing.
const HashFunction = "SHA-256"

// Headers are the mandatory typed fields of a REQUEST frame. A missing
// id, alpha_ledger or beta_ledger, or an unrecognised ledger value, fails
// DecodeRequest (close the substream); an unrecognised protocol or
// hash_function fails Validate with ErrProtocolUnsupported, which is
// answered with Declined{ProtocolUnsupported}.
type Headers struct {
	ID           string       `json:"id"`
	AlphaLedger  ledger.Kind  `json:"alpha_ledger"`
	BetaLedger   ledger.Kind  `json:"beta_ledger"`
	AlphaAsset   string       `json:"alpha_asset"`
	BetaAsset    string       `json:"beta_asset"`
	Protocol     string       `json:"protocol"`
	HashFunction string       `json:"hash_function"`
}

// RequestBody is the REQUEST frame body: identities, expiries, secret hash.
type RequestBody struct {
	AlphaLedgerRefundIdentity string `json:"alpha_ledger_refund_identity"`
	BetaLedgerRedeemIdentity  string `json:"beta_ledger_redeem_identity"`
	AlphaExpiry               int64  `json:"alpha_expiry"`
	BetaExpiry                int64  `json:"beta_expiry"`
	SecretHash                string `json:"secret_hash"` // hex-encoded
}

// Request is a fully decoded SWAP request.
type Request struct {
	Headers Headers
	Body    RequestBody
}

// Validate checks the one invariant the wire layer itself is responsible
// for: alpha's refund window must outlast beta's.
func (r Request) Validate() error {
	if r.Body.AlphaExpiry <= r.Body.BetaExpiry {
		return fmt.Errorf("rfc003: invalid request: alpha_expiry (%d) must be greater than beta_expiry (%d)",
			r.Body.AlphaExpiry, r.Body.BetaExpiry)
	}
	if r.Headers.Protocol != ProtocolID {
		return fmt.Errorf("%w: protocol %q", ErrProtocolUnsupported, r.Headers.Protocol)
	}
	if r.Headers.HashFunction != HashFunction {
		return fmt.Errorf("%w: hash function %q", ErrProtocolUnsupported, r.Headers.HashFunction)
	}
	return nil
}

// Decision tags a RESPONSE frame's header.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionDeclined Decision = "declined"
)

// DeclineReason is a closed set of reasons carried in a declined response.
type DeclineReason string

const (
	ReasonUnsatisfactoryRate     DeclineReason = "UnsatisfactoryRate"
	ReasonUnsatisfactoryQuantity DeclineReason = "UnsatisfactoryQuantity"
	ReasonUnsatisfactoryTimeout  DeclineReason = "UnsatisfactoryTimeout"
	ReasonProtocolUnsupported    DeclineReason = "ProtocolUnsupported"
	ReasonUnknownProtocol        DeclineReason = "UnknownProtocol"
	ReasonOther                  DeclineReason = "Other"
)

// AcceptBody carries the responding actor's identities.
type AcceptBody struct {
	AlphaLedgerRedeemIdentity string `json:"alpha_ledger_redeem_identity"`
	BetaLedgerRefundIdentity  string `json:"beta_ledger_refund_identity"`
}

// DeclineBody carries the decline reason.
type DeclineBody struct {
	Reason DeclineReason `json:"reason"`
}

// Response is a fully decoded RESPONSE frame.
type Response struct {
	ID       string
	Decision Decision
	Accept   *AcceptBody  // set iff Decision == DecisionAccepted
	Decline  *DeclineBody // set iff Decision == DecisionDeclined
}

// wireFrame is the on-the-wire shape: a typed header block plus a raw
// body the caller decodes according to Type/Decision.
type wireFrame struct {
	Type     FrameType       `json:"type"`
	ID       string          `json:"id,omitempty"`
	Decision Decision        `json:"decision,omitempty"`
	Headers  json.RawMessage `json:"headers,omitempty"`
	Body     json.RawMessage `json:"body"`
}
