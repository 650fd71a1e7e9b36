// Package chain resolves a block's EVM revision and precompile set from a
// go-ethereum params.ChainConfig fetched once per genesis hash and cached
// process-wide, mirroring go-ethereum's own lazy, immutable chain-config
// handling (see params.ChainConfig and core/vm's per-revision precompile
// tables).
package chain

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
)

// Config wraps a chain's consensus parameters plus the fork-activation
// lookups the executor and tracers need.
type Config struct {
	Genesis common.Hash
	Params  *params.ChainConfig
}

// Cache is a process-wide, immutable-after-first-read table of chain
// configs keyed by the hash of block 0, as spec.md §4.1 step 1 and §5
// describe ("Chain config: lazily loaded, cached process-wide, immutable").
type Cache struct {
	mu      sync.RWMutex
	configs map[common.Hash]*Config
}

// NewCache returns an empty config cache.
func NewCache() *Cache {
	return &Cache{configs: make(map[common.Hash]*Config)}
}

// Lookup returns the cached config for genesisHash, loading it via load on
// first use.
func (c *Cache) Lookup(genesisHash common.Hash, load func(common.Hash) (*params.ChainConfig, error)) (*Config, error) {
	c.mu.RLock()
	if cfg, ok := c.configs[genesisHash]; ok {
		c.mu.RUnlock()
		return cfg, nil
	}
	c.mu.RUnlock()

	p, err := load(genesisHash)
	if err != nil {
		return nil, fmt.Errorf("load chain config for genesis %s: %w", genesisHash, err)
	}
	cfg := &Config{Genesis: genesisHash, Params: p}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.configs[genesisHash]; ok {
		return existing, nil
	}
	c.configs[genesisHash] = cfg
	return cfg, nil
}

// Rules returns the go-ethereum fork rules active at (blockNumber, time),
// the single source of truth the tracers and executor use to pick opcode
// tables and precompile sets.
func (c *Config) Rules(blockNumber *big.Int, blockTime uint64) params.Rules {
	return c.Params.Rules(blockNumber, true, blockTime)
}

// Precompiles returns the active precompiled-contract address set for the
// given rules. The tracers do not consult it: core/tracing.Hooks reports
// precompile calls through the ordinary OnEnter/OnExit pair, and the Debug
// Tracer handles them as ordinary call frames.
func Precompiles(rules params.Rules) map[common.Address]vm.PrecompiledContract {
	switch {
	case rules.IsCancun:
		return vm.PrecompiledContractsCancun
	case rules.IsBerlin:
		return vm.PrecompiledContractsBerlin
	case rules.IsIstanbul:
		return vm.PrecompiledContractsIstanbul
	case rules.IsByzantium:
		return vm.PrecompiledContractsByzantium
	default:
		return vm.PrecompiledContractsHomestead
	}
}

// IsPrecompile reports whether addr is a precompile under rules.
func IsPrecompile(rules params.Rules, addr common.Address) bool {
	_, ok := Precompiles(rules)[addr]
	return ok
}
