package config

import (
	"fmt"

	"github.com/klingon-exchange/cnd/internal/bitcoin"
)

const (
	defaultListenMultiaddr = "/ip4/0.0.0.0/tcp/9939"
	defaultHTTPAddress     = "127.0.0.1"
	defaultHTTPPort        = 8000
	defaultDataDir         = ".cndd"
	defaultBitcoinNodeURL  = "http://localhost:8332"
	defaultEthereumNodeURL = "http://localhost:8545"
)

// Settings is the fully-resolved configuration every component reads
// from: no optional fields, every absent File section replaced by its
// default.
type Settings struct {
	Listen         []string
	HTTPAddress    string
	HTTPPort       uint16
	AllowedOrigins AllowedOrigins
	DataDir        string
	BitcoinNetwork bitcoin.Network
	BitcoinNodeURL string
	EthereumNodeURL string
}

// FromFile resolves a parsed File into Settings, filling in every
// default for an absent section.
func FromFile(f File) (Settings, error) {
	s := Settings{
		Listen:         []string{defaultListenMultiaddr},
		HTTPAddress:    defaultHTTPAddress,
		HTTPPort:       defaultHTTPPort,
		AllowedOrigins: AllowedOrigins{None: true},
		DataDir:        defaultDataDir,
		BitcoinNetwork: bitcoin.Mainnet,
		BitcoinNodeURL: defaultBitcoinNodeURL,
		EthereumNodeURL: defaultEthereumNodeURL,
	}

	if f.Network != nil && len(f.Network.Listen) > 0 {
		s.Listen = f.Network.Listen
	}
	if f.HTTPAPI != nil {
		s.HTTPAddress = f.HTTPAPI.Socket.Address
		s.HTTPPort = f.HTTPAPI.Socket.Port
		if f.HTTPAPI.CORS != nil {
			s.AllowedOrigins = f.HTTPAPI.CORS.AllowedOrigins
		}
	}
	if f.Data != nil && f.Data.Dir != "" {
		s.DataDir = f.Data.Dir
	}
	if f.Bitcoin != nil {
		net, err := parseBitcoinNetwork(f.Bitcoin.Network)
		if err != nil {
			return Settings{}, err
		}
		s.BitcoinNetwork = net
		if f.Bitcoin.NodeURL != "" {
			s.BitcoinNodeURL = f.Bitcoin.NodeURL
		}
	}
	if f.Ethereum != nil && f.Ethereum.NodeURL != "" {
		s.EthereumNodeURL = f.Ethereum.NodeURL
	}

	return s, nil
}

// ToFile renders Settings back into a File with every section
// populated, the inverse FromFile needs to roundtrip.
func (s Settings) ToFile() File {
	return File{
		Network: &Network{Listen: s.Listen},
		HTTPAPI: &HTTPAPI{
			Socket: Socket{Address: s.HTTPAddress, Port: s.HTTPPort},
			CORS:   &CORS{AllowedOrigins: s.AllowedOrigins},
		},
		Data:    &Data{Dir: s.DataDir},
		Bitcoin: &Bitcoin{Network: bitcoinNetworkString(s.BitcoinNetwork), NodeURL: s.BitcoinNodeURL},
		Ethereum: &Ethereum{NodeURL: s.EthereumNodeURL},
	}
}

func parseBitcoinNetwork(s string) (bitcoin.Network, error) {
	switch s {
	case "", "mainnet":
		return bitcoin.Mainnet, nil
	case "testnet":
		return bitcoin.Testnet, nil
	case "regtest":
		return bitcoin.Regtest, nil
	default:
		return "", fmt.Errorf("config: unknown bitcoin network %q", s)
	}
}

func bitcoinNetworkString(n bitcoin.Network) string {
	switch n {
	case bitcoin.Testnet:
		return "testnet"
	case bitcoin.Regtest:
		return "regtest"
	default:
		return "mainnet"
	}
}
