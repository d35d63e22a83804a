package rfc003

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Protocol-level errors (§7 RequestError taxonomy, the decode-time slice of it).
var (
	ErrUnknownHeader       = errors.New("rfc003: unknown mandatory header")
	ErrProtocolUnsupported = errors.New("rfc003: unsupported protocol")
	ErrInvalidResponse     = errors.New("rfc003: invalid response frame")
)

// EncodeRequest marshals a Request into the wire frame shape.
func EncodeRequest(r Request) ([]byte, error) {
	headers, err := json.Marshal(r.Headers)
	if err != nil {
		return nil, fmt.Errorf("rfc003: encode headers: %w", err)
	}
	body, err := json.Marshal(r.Body)
	if err != nil {
		return nil, fmt.Errorf("rfc003: encode body: %w", err)
	}
	return json.Marshal(wireFrame{Type: FrameRequest, Headers: headers, Body: body})
}

// DecodeRequest parses a wire frame as a SWAP request. An unrecognised
// frame type, or a headers block missing a mandatory field, is
// ErrUnknownHeader — a hard failure on which the comit transport closes
// the substream without writing any frame; no ERROR frame is sent.
func DecodeRequest(raw []byte) (Request, error) {
	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrUnknownHeader, err)
	}
	if frame.Type != FrameRequest {
		return Request{}, fmt.Errorf("%w: frame type %q", ErrUnknownHeader, frame.Type)
	}

	var headers Headers
	if err := json.Unmarshal(frame.Headers, &headers); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrUnknownHeader, err)
	}
	if headers.ID == "" || !headers.AlphaLedger.Valid() || !headers.BetaLedger.Valid() {
		return Request{}, fmt.Errorf("%w: missing id/alpha_ledger/beta_ledger", ErrUnknownHeader)
	}

	var body RequestBody
	if err := json.Unmarshal(frame.Body, &body); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrUnknownHeader, err)
	}

	req := Request{Headers: headers, Body: body}
	return req, nil
}

// EncodeResponse marshals a Response into the wire frame shape.
func EncodeResponse(r Response) ([]byte, error) {
	var body []byte
	var err error
	switch r.Decision {
	case DecisionAccepted:
		if r.Accept == nil {
			return nil, fmt.Errorf("rfc003: accepted response missing accept body")
		}
		body, err = json.Marshal(r.Accept)
	case DecisionDeclined:
		if r.Decline == nil {
			return nil, fmt.Errorf("rfc003: declined response missing decline body")
		}
		body, err = json.Marshal(r.Decline)
	default:
		return nil, fmt.Errorf("rfc003: unknown decision %q", r.Decision)
	}
	if err != nil {
		return nil, fmt.Errorf("rfc003: encode response body: %w", err)
	}
	return json.Marshal(wireFrame{Type: FrameResponse, ID: r.ID, Decision: r.Decision, Body: body})
}

// DecodeResponse parses a wire frame as a SWAP response.
func DecodeResponse(raw []byte) (Response, error) {
	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if frame.Type != FrameResponse {
		return Response{}, fmt.Errorf("%w: frame type %q", ErrInvalidResponse, frame.Type)
	}

	resp := Response{ID: frame.ID, Decision: frame.Decision}
	switch frame.Decision {
	case DecisionAccepted:
		var accept AcceptBody
		if err := json.Unmarshal(frame.Body, &accept); err != nil {
			return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		resp.Accept = &accept
	case DecisionDeclined:
		var decline DeclineBody
		if err := json.Unmarshal(frame.Body, &decline); err != nil {
			return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		resp.Decline = &decline
	default:
		return Response{}, fmt.Errorf("%w: decision %q", ErrInvalidResponse, frame.Decision)
	}
	return resp, nil
}
