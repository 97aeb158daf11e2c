package proofs

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/ccip-gateway/op-service/eth"
)

//go:embed rpc.yaml
var defaultRegistry []byte

// ChainEntry maps the OptimismPortal of a chain to an L2 RPC endpoint.
type ChainEntry struct {
	Name   string `yaml:"name" toml:"name"`
	Portal string `yaml:"portal" toml:"portal"`
	RPC    string `yaml:"rpc" toml:"rpc"`
}

type registryFile struct {
	Chains []ChainEntry `yaml:"chains" toml:"chains"`
}

// StaticRegistry holds the L2 RPC endpoint per portal.
type StaticRegistry map[common.Address]ChainEntry

// DefaultStaticRegistry returns the built-in endpoints of known chains.
func DefaultStaticRegistry() StaticRegistry {
	reg, err := parseYAMLRegistry(defaultRegistry)
	if err != nil {
		panic(fmt.Errorf("invalid embedded registry: %w", err))
	}
	return reg
}

// LoadStaticRegistry reads a registry file. Files with a .toml extension are read as TOML, anything else as YAML.
func LoadStaticRegistry(path string) (StaticRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	if filepath.Ext(path) == ".toml" {
		var f registryFile
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TOML registry %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys in TOML registry %s: %v", path, undecoded)
		}
		return f.toRegistry()
	}
	reg, err := parseYAMLRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode YAML registry %s: %w", path, err)
	}
	return reg, nil
}

func parseYAMLRegistry(data []byte) (StaticRegistry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f registryFile
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return f.toRegistry()
}

func (f *registryFile) toRegistry() (StaticRegistry, error) {
	reg := make(StaticRegistry, len(f.Chains))
	var errs []error
	for i, c := range f.Chains {
		portal, err := eth.ParseAddress(c.Portal)
		if err != nil {
			errs = append(errs, fmt.Errorf("chain %d (%s): invalid portal: %w", i, c.Name, err))
			continue
		}
		if c.RPC == "" {
			errs = append(errs, fmt.Errorf("chain %d (%s): missing rpc", i, c.Name))
			continue
		}
		if _, dup := reg[portal]; dup {
			errs = append(errs, fmt.Errorf("chain %d (%s): duplicate portal %s", i, c.Name, portal))
			continue
		}
		reg[portal] = c
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return reg, nil
}

// Merge returns a registry with the entries of both, the entries of other take precedence.
func (r StaticRegistry) Merge(other StaticRegistry) StaticRegistry {
	out := make(StaticRegistry, len(r)+len(other))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
