package config

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/cnd/internal/bitcoin"
)

func TestCorsDeserializesAllThreeShapes(t *testing.T) {
	cases := []struct {
		toml string
		want AllowedOrigins
	}{
		{`allowed_origins = "all"` + "\n", AllowedOrigins{All: true}},
		{`allowed_origins = "none"` + "\n", AllowedOrigins{None: true}},
		{`allowed_origins = ["http://localhost:8000", "https://192.168.1.55:3000"]` + "\n",
			AllowedOrigins{List: []string{"http://localhost:8000", "https://192.168.1.55:3000"}}},
	}
	for _, c := range cases {
		var got CORS
		require.NoError(t, toml.Unmarshal([]byte(c.toml), &got))
		assert.Equal(t, c.want, got.AllowedOrigins)
	}
}

func TestFullConfigDeserializesCorrectly(t *testing.T) {
	contents := `
[network]
listen = ["/ip4/0.0.0.0/tcp/9939"]

[http_api.socket]
address = "127.0.0.1"
port = 8000

[http_api.cors]
allowed_origins = "all"

[data]
dir = "/tmp/comit/"

[bitcoin]
network = "mainnet"
node_url = "http://example.com/"

[ethereum]
node_url = "http://example.com/"
`
	var f File
	require.NoError(t, toml.Unmarshal([]byte(contents), &f))

	require.NotNil(t, f.Network)
	assert.Equal(t, []string{"/ip4/0.0.0.0/tcp/9939"}, f.Network.Listen)
	require.NotNil(t, f.HTTPAPI)
	assert.Equal(t, "127.0.0.1", f.HTTPAPI.Socket.Address)
	assert.Equal(t, uint16(8000), f.HTTPAPI.Socket.Port)
	require.NotNil(t, f.HTTPAPI.CORS)
	assert.Equal(t, AllowedOrigins{All: true}, f.HTTPAPI.CORS.AllowedOrigins)
	require.NotNil(t, f.Data)
	assert.Equal(t, "/tmp/comit/", f.Data.Dir)
	require.NotNil(t, f.Bitcoin)
	assert.Equal(t, "mainnet", f.Bitcoin.Network)
	assert.Equal(t, "http://example.com/", f.Bitcoin.NodeURL)
	require.NotNil(t, f.Ethereum)
	assert.Equal(t, "http://example.com/", f.Ethereum.NodeURL)
}

func TestConfigWithDefaultsRoundtrip(t *testing.T) {
	defaultFile := File{}

	settings, err := FromFile(defaultFile)
	require.NoError(t, err)
	assert.Equal(t, bitcoin.Mainnet, settings.BitcoinNetwork)
	assert.Equal(t, defaultDataDir, settings.DataDir)

	roundtripped := settings.ToFile()
	serialized, err := toml.Marshal(roundtripped)
	require.NoError(t, err)

	var reparsed File
	require.NoError(t, toml.Unmarshal(serialized, &reparsed))
	assert.Equal(t, roundtripped, reparsed)
}

func TestFromFileRejectsUnknownBitcoinNetwork(t *testing.T) {
	f := File{Bitcoin: &Bitcoin{Network: "not-a-real-network"}}
	_, err := FromFile(f)
	assert.Error(t, err)
}
