// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the TOML file that configures a backrun engine
// instance: the backrun_strategy section, pool-class loading, and
// topology (channel capacities, subscriptions, relay endpoints)
// described in spec.md §6. Flags bound with pflag override file values;
// cast coerces loosely-typed viper lookups into the concrete types the
// rest of the core expects, mirroring cmd/simulator/config's
// BuildFlagSet/BuildViper/BuildConfig split in the teacher.
package config

import (
	"fmt"
	"net/url"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/geth/common"
)

const (
	ConfigFileKey = "config-file"
	LogLevelKey   = "log-level"
	VersionKey    = "version"

	nodeRPCURLKey    = "topology.node-rpc-url"
	grpcExExAddrKey  = "topology.grpc-exex-addr"
	relayURLsKey     = "topology.relay-urls"
	blockHistoryCap  = "topology.block-history-capacity"
	marketEventCap   = "topology.market-event-capacity"
	searchResultCap  = "topology.search-result-capacity"
	healthEventCap   = "topology.health-event-capacity"
	maxPathHopsKey   = "topology.max-path-hops"
	searchConcurKey  = "topology.search-concurrency"
	strategyEOAKey   = "backrun-strategy.eoa"
	strategySmartKey = "backrun-strategy.smart"
	poolThreadsKey   = "pools-loading.threads"
	poolFilterKey    = "pools-loading.class-filter"
)

// Version is the semantic version reported by `backrun --version`.
const Version = "0.1.0"

// BackrunStrategy declares which signer identity composes backrun
// transactions: a pinned EOA, the rotating pool managed by compose's
// SignerPool, or both (spec.md §6: "backrun_strategy section declares
// {eoa: address?, smart: bool}").
type BackrunStrategy struct {
	EOA   *common.Address
	Smart bool
}

// PoolsLoading controls how many worker goroutines sweep pool-creation
// logs and protocol factories at start-up, and which pool classes are
// eligible at all. ClassFilter is a go-bexpr boolean expression
// evaluated against a poolClassSnapshot{Class string}; an empty filter
// admits every class.
type PoolsLoading struct {
	Threads     int
	ClassFilter string
}

// Topology sizes the channels and endpoints the actor runtime wires
// together at start-up: broadcaster/queue capacities, the hop budget
// bounding SwapPath length (spec.md §9: "default 3"), search worker
// concurrency, and the node/relay endpoints chain I/O dials.
type Topology struct {
	NodeRPCURL      string
	GRPCExExAddr    string
	RelayURLs       []*url.URL
	BlockHistoryCap int
	MarketEventCap  int
	SearchResultCap int
	HealthEventCap  int
	MaxPathHops     int
	SearchConcur    int
}

// Config is the fully-resolved start-up configuration the core
// consumes; CLI parsing and file discovery are out of scope for
// everything downstream of Load (spec.md §6: "CLI & env: out of
// scope").
type Config struct {
	BackrunStrategy BackrunStrategy
	PoolsLoading    PoolsLoading
	Topology        Topology
}

// BuildFlagSet declares the flags cmd/backrun exposes; every flag has a
// matching viper key so a TOML file and the command line agree on
// precedence (flags win).
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("backrun", pflag.ContinueOnError)
	fs.String(ConfigFileKey, "", "path to the TOML config file")
	fs.String(LogLevelKey, "info", "log level (trace|debug|info|warn|error)")
	fs.Bool(VersionKey, false, "print version and exit")

	fs.String(nodeRPCURLKey, "", "upstream node JSON-RPC/WS endpoint")
	fs.String(grpcExExAddrKey, "", "ExEx gRPC dial address")
	fs.StringSlice(relayURLsKey, nil, "Flashbots-style relay endpoints, in fallback order")
	fs.Int(blockHistoryCap, 256, "BlockHistory ring capacity")
	fs.Int(marketEventCap, 1024, "market-event broadcaster capacity")
	fs.Int(searchResultCap, 256, "search-result broadcaster capacity")
	fs.Int(healthEventCap, 256, "health-event broadcaster capacity")
	fs.Int(maxPathHopsKey, 3, "maximum SwapPath hop count")
	fs.Int(searchConcurKey, 8, "arbitrage searcher worker concurrency")

	fs.String(strategyEOAKey, "", "pinned signer EOA (hex address); empty disables pinned signing")
	fs.Bool(strategySmartKey, true, "enable the rotating SignerPool")

	fs.Int(poolThreadsKey, 4, "pool-loader sweep goroutines")
	fs.String(poolFilterKey, "", "go-bexpr expression filtering enabled pool classes; empty admits all")
	return fs
}

// BuildViper parses args against fs, then layers a TOML config file (if
// named by --config-file) and environment variables (BACKRUN_ prefix)
// underneath the flags, so the precedence is flags > env > file >
// default.
func BuildViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: binding flags: %w", err)
	}

	v.SetEnvPrefix("backrun")
	v.AutomaticEnv()

	if path := v.GetString(ConfigFileKey); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}
	return v, nil
}

// BuildConfig translates a populated viper into the typed Config the
// core consumes, using cast for the loosely-typed lookups viper returns
// for values that may have arrived as flag strings, env strings, or
// native TOML types.
func BuildConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		BackrunStrategy: BackrunStrategy{
			Smart: v.GetBool(strategySmartKey),
		},
		PoolsLoading: PoolsLoading{
			Threads:     v.GetInt(poolThreadsKey),
			ClassFilter: v.GetString(poolFilterKey),
		},
		Topology: Topology{
			NodeRPCURL:      v.GetString(nodeRPCURLKey),
			GRPCExExAddr:    v.GetString(grpcExExAddrKey),
			BlockHistoryCap: v.GetInt(blockHistoryCap),
			MarketEventCap:  v.GetInt(marketEventCap),
			SearchResultCap: v.GetInt(searchResultCap),
			HealthEventCap:  v.GetInt(healthEventCap),
			MaxPathHops:     v.GetInt(maxPathHopsKey),
			SearchConcur:    v.GetInt(searchConcurKey),
		},
	}

	if eoaHex := v.GetString(strategyEOAKey); eoaHex != "" {
		addr := common.HexToAddress(eoaHex)
		cfg.BackrunStrategy.EOA = &addr
	}

	rawRelays, err := cast.ToStringSliceE(v.Get(relayURLsKey))
	if err != nil {
		return nil, fmt.Errorf("config: %s must be a string list: %w", relayURLsKey, err)
	}
	for _, raw := range rawRelays {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("config: relay url %q: %w", raw, err)
		}
		cfg.Topology.RelayURLs = append(cfg.Topology.RelayURLs, u)
	}

	if cfg.Topology.MaxPathHops < 1 {
		return nil, fmt.Errorf("config: %s must be >= 1, got %d", maxPathHopsKey, cfg.Topology.MaxPathHops)
	}
	if cfg.PoolsLoading.Threads < 1 {
		return nil, fmt.Errorf("config: %s must be >= 1, got %d", poolThreadsKey, cfg.PoolsLoading.Threads)
	}
	if !cfg.BackrunStrategy.Smart && cfg.BackrunStrategy.EOA == nil {
		return nil, fmt.Errorf("config: backrun_strategy must enable smart signing or name a pinned eoa")
	}

	return cfg, nil
}

// Load is the single-call convenience path: build the flag set, parse
// args against it and any named TOML file, and resolve the typed
// Config. cmd/backrun's main calls this directly.
func Load(args []string) (*Config, error) {
	fs := BuildFlagSet()
	v, err := BuildViper(fs, args)
	if err != nil {
		return nil, err
	}
	return BuildConfig(v)
}
