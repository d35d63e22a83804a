package rfc003

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/cnd/internal/ledger"
)

func sampleRequest() Request {
	return Request{
		Headers: Headers{
			ID:           "f47ac10b-58cc-4372-a567-0e02b2c3d479",
			AlphaLedger:  ledger.Bitcoin,
			BetaLedger:   ledger.Ethereum,
			AlphaAsset:   "bitcoin",
			BetaAsset:    "ether",
			Protocol:     ProtocolID,
			HashFunction: HashFunction,
		},
		Body: RequestBody{
			AlphaLedgerRefundIdentity: "bc1qexample",
			BetaLedgerRedeemIdentity:  "0xexample",
			AlphaExpiry:               2000,
			BetaExpiry:                1000,
			SecretHash:                "deadbeef",
		},
	}
}

func TestRequestRoundTrip(t *testing.T) {
	req := sampleRequest()
	raw, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestRequestValidateRejectsBadExpiryOrdering(t *testing.T) {
	req := sampleRequest()
	req.Body.AlphaExpiry = 500
	req.Body.BetaExpiry = 1000
	assert.Error(t, req.Validate())
}

func TestRequestValidateAcceptsGoodExpiryOrdering(t *testing.T) {
	req := sampleRequest()
	assert.NoError(t, req.Validate())
}

func TestDecodeRequestRejectsUnknownFrameType(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"type":"BOGUS","body":{}}`))
	require.ErrorIs(t, err, ErrUnknownHeader)
}

func TestDecodeRequestRejectsMissingMandatoryHeaders(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"type":"REQUEST","headers":{},"body":{}}`))
	require.ErrorIs(t, err, ErrUnknownHeader)
}

func TestResponseRoundTripAccepted(t *testing.T) {
	resp := Response{
		ID:       "f47ac10b-58cc-4372-a567-0e02b2c3d479",
		Decision: DecisionAccepted,
		Accept: &AcceptBody{
			AlphaLedgerRedeemIdentity: "bc1qbob",
			BetaLedgerRefundIdentity:  "0xbob",
		},
	}
	raw, err := EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := DecodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, resp, decoded)
}

func TestResponseRoundTripDeclined(t *testing.T) {
	resp := Response{
		Decision: DecisionDeclined,
		Decline:  &DeclineBody{Reason: ReasonUnsatisfactoryTimeout},
	}
	raw, err := EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := DecodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, ReasonUnsatisfactoryTimeout, decoded.Decline.Reason)
}
