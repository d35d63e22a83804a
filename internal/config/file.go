// Package config is the on-disk TOML configuration format plus the
// defaulted, fully-populated Settings the rest of the daemon consumes.
// File mirrors the config file as it appears on disk: every section is
// optional, so defaulting happens in one place (FromFile) rather than
// scattered across the daemon.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// File is the raw shape of cndd.toml. Every field is optional; absent
// sections are filled in by FromFile.
type File struct {
	Network  *Network  `toml:"network,omitempty"`
	HTTPAPI  *HTTPAPI  `toml:"http_api,omitempty"`
	Data     *Data     `toml:"data,omitempty"`
	Bitcoin  *Bitcoin  `toml:"bitcoin,omitempty"`
	Ethereum *Ethereum `toml:"ethereum,omitempty"`
}

// Network carries the multiaddrs this node listens on.
type Network struct {
	Listen []string `toml:"listen"`
}

// HTTPAPI is the local REST surface's bind address and CORS policy.
type HTTPAPI struct {
	Socket Socket `toml:"socket"`
	CORS   *CORS  `toml:"cors,omitempty"`
}

// Socket is an address+port pair.
type Socket struct {
	Address string `toml:"address"`
	Port    uint16 `toml:"port"`
}

// CORS carries the allowed-origins policy for the HTTP API.
type CORS struct {
	AllowedOrigins AllowedOrigins `toml:"allowed_origins"`
}

// AllowedOrigins is TOML's closest approximation of the original's
// untagged enum: "all", "none", or an explicit list of origin strings.
// UnmarshalTOML/MarshalTOML below do the tri-way dispatch a plain struct
// tag can't express.
type AllowedOrigins struct {
	All  bool
	None bool
	List []string
}

func (a AllowedOrigins) MarshalTOML() ([]byte, error) {
	switch {
	case a.All:
		return toml.Marshal("all")
	case a.None:
		return toml.Marshal("none")
	default:
		return toml.Marshal(a.List)
	}
}

func (a *AllowedOrigins) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		switch v {
		case "all":
			*a = AllowedOrigins{All: true}
		case "none":
			*a = AllowedOrigins{None: true}
		default:
			return fmt.Errorf("config: allowed_origins string must be \"all\" or \"none\", got %q", v)
		}
		return nil
	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("config: allowed_origins list must contain only strings")
			}
			list = append(list, s)
		}
		*a = AllowedOrigins{List: list}
		return nil
	default:
		return fmt.Errorf("config: unsupported allowed_origins shape %T", data)
	}
}

// Data names the directory persisted state (seed.pem) lives under.
type Data struct {
	Dir string `toml:"dir"`
}

// Bitcoin carries the network this node trusts the Bitcoin connector's
// node_url to serve.
type Bitcoin struct {
	Network string `toml:"network"` // "mainnet" | "testnet" | "regtest"
	NodeURL string `toml:"node_url"`
}

// Ethereum carries the Ethereum connector's RPC endpoint.
type Ethereum struct {
	NodeURL string `toml:"node_url"`
}

// ReadFile parses a TOML config file from disk.
func ReadFile(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := toml.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}

// Write serialises f as TOML to path.
func (f File) Write(path string) error {
	raw, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
