package proofs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-service/client"
	"github.com/mantlenetworkio/ccip-gateway/op-service/locks"
	"github.com/mantlenetworkio/ccip-gateway/op-service/metrics"
	"github.com/mantlenetworkio/ccip-gateway/op-service/sources"
	"github.com/mantlenetworkio/ccip-gateway/op-service/sources/caching"
)

// EnvPrefix is the prefix of the environment variables that override the L2 RPC of a portal,
// e.g. RPC_0xbEb5Fc579115071764c7423A4f12eDde41f106Ed.
const EnvPrefix = "RPC_"

type RegistryConfig struct {
	Static StaticRegistry
	// CacheSize bounds the number of L2 clients kept open. 0 keeps every client.
	CacheSize      int
	CallTimeout    time.Duration
	MaxConcurrency int
	ProofBatchSize int
}

// DialFunc connects to an L2 RPC endpoint.
type DialFunc func(ctx context.Context, log log.Logger, endpoint string) (client.RPC, error)

type RegistryMetricer interface {
	metrics.RPCClientMetricer
	caching.Metrics
	RecordL2Sources(count int)
}

type RegistryOption func(r *Registry)

// WithGetenv replaces the environment lookup of endpoint overrides.
func WithGetenv(getenv func(string) string) RegistryOption {
	return func(r *Registry) {
		r.getenv = getenv
	}
}

// WithDial replaces how L2 endpoints are connected to.
func WithDial(dial DialFunc) RegistryOption {
	return func(r *Registry) {
		r.dial = dial
	}
}

// L2Source is the open connection to the L2 RPC of one portal.
// Registry.Source hands it out acquired; every user calls Release when done.
type L2Source struct {
	Portal    common.Address
	Name      string
	Assembler *Assembler

	client *sources.EthClient

	mu        sync.Mutex
	refs      int
	evicted   bool
	closeOnce sync.Once
}

// acquire registers a user of the source. It fails once the source is evicted.
func (s *L2Source) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return false
	}
	s.refs++
	return true
}

// Release ends a use of the source. An evicted source is closed by its last user.
func (s *L2Source) Release() {
	s.mu.Lock()
	s.refs--
	idle := s.evicted && s.refs <= 0
	s.mu.Unlock()
	if idle {
		s.Close()
	}
}

// evict marks the source as dropped from the cache, and reports whether it is unused.
func (s *L2Source) evict() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evicted = true
	return s.refs <= 0
}

// Close closes the connection regardless of users. It is safe to call more than once.
func (s *L2Source) Close() {
	s.closeOnce.Do(s.client.Close)
}

type sourceCache interface {
	Get(portal common.Address) (*L2Source, bool)
	LoadOrStore(portal common.Address, src *L2Source) (actual *L2Source, loaded bool)
	Len() int
	Close()
}

type mapCache struct {
	m locks.RWMap[common.Address, *L2Source]
}

func (c *mapCache) Get(portal common.Address) (*L2Source, bool) {
	return c.m.Get(portal)
}

func (c *mapCache) LoadOrStore(portal common.Address, src *L2Source) (*L2Source, bool) {
	return c.m.LoadOrStore(portal, src)
}

func (c *mapCache) Len() int {
	return c.m.Len()
}

func (c *mapCache) Close() {
	for _, src := range c.m.Drain() {
		src.Close()
	}
}

type lruCache struct {
	c *lru.Cache[common.Address, *L2Source]
}

func newLRUCache(log log.Logger, size int) (*lruCache, error) {
	c, err := lru.NewWithEvict(size, func(portal common.Address, src *L2Source) {
		if !src.evict() {
			log.Info("Evicted L2 client, closing once released", "portal", portal, "chain", src.Name)
			return
		}
		log.Info("Closing evicted L2 client", "portal", portal, "chain", src.Name)
		// the evicting request should not wait for the close
		go src.Close()
	})
	if err != nil {
		return nil, err
	}
	return &lruCache{c: c}, nil
}

func (c *lruCache) Get(portal common.Address) (*L2Source, bool) {
	return c.c.Get(portal)
}

func (c *lruCache) LoadOrStore(portal common.Address, src *L2Source) (*L2Source, bool) {
	prev, ok, _ := c.c.PeekOrAdd(portal, src)
	if ok {
		return prev, true
	}
	return src, false
}

func (c *lruCache) Len() int {
	return c.c.Len()
}

func (c *lruCache) Close() {
	srcs := c.c.Values()
	c.c.Purge()
	for _, src := range srcs {
		src.Close()
	}
}

// Registry lazily connects to the L2 RPC of every portal it is asked for, and keeps the connections.
type Registry struct {
	log    log.Logger
	cfg    RegistryConfig
	m      RegistryMetricer
	getenv func(string) string
	dial   DialFunc
	cache  sourceCache
}

func NewRegistry(log log.Logger, cfg RegistryConfig, m RegistryMetricer, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		log:    log,
		cfg:    cfg,
		m:      m,
		getenv: os.Getenv,
	}
	r.dial = r.defaultDial
	for _, opt := range opts {
		opt(r)
	}
	if cfg.CacheSize > 0 {
		c, err := newLRUCache(log, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create L2 client cache: %w", err)
		}
		r.cache = c
	} else {
		r.cache = &mapCache{}
	}
	return r, nil
}

func (r *Registry) defaultDial(ctx context.Context, log log.Logger, endpoint string) (client.RPC, error) {
	return client.NewRPC(ctx, log, endpoint, client.WithCallTimeout(r.cfg.CallTimeout), client.WithBatchCallTimeout(r.cfg.CallTimeout))
}

// endpoint returns the L2 RPC of a portal: the environment override, else the static registry entry.
func (r *Registry) endpoint(portal common.Address) (name string, url string, ok bool) {
	if url := r.getenv(EnvPrefix + portal.Hex()); url != "" {
		return portal.Hex(), url, true
	}
	if entry, ok := r.cfg.Static[portal]; ok {
		return entry.Name, entry.RPC, true
	}
	return "", "", false
}

// Source returns the L2 connection of the portal, connecting on first use.
// The caller must Release the returned source.
func (r *Registry) Source(ctx context.Context, portal common.Address) (*L2Source, error) {
	if src, ok := r.cache.Get(portal); ok && src.acquire() {
		return src, nil
	}
	name, url, ok := r.endpoint(portal)
	if !ok {
		return nil, &UnsupportedPortalError{Portal: portal}
	}

	// connect without holding any lock, a concurrent request for the same portal may win the race
	src, err := r.newSource(ctx, portal, name, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to L2 RPC of portal %s (%s): %w", portal, name, err)
	}
	for {
		actual, loaded := r.cache.LoadOrStore(portal, src)
		if !loaded {
			r.log.Info("Connected L2 client", "portal", portal, "chain", name)
			r.m.RecordL2Sources(r.cache.Len())
			return src, nil
		}
		if actual.acquire() {
			src.Close()
			return actual, nil
		}
		// the winner was evicted in the meantime, offer ours again
	}
}

func (r *Registry) newSource(ctx context.Context, portal common.Address, name string, url string) (*L2Source, error) {
	lgr := r.log.New("portal", portal, "chain", name)
	rpcClient, err := r.dial(ctx, lgr, url)
	if err != nil {
		return nil, err
	}
	rpcClient = client.NewInstrumentedRPC(rpcClient, "l2_"+name, r.m)
	ethClient, err := sources.NewEthClient(rpcClient, lgr, r.m, &sources.EthClientConfig{
		MaxConcurrentRequests: r.cfg.MaxConcurrency,
		HeadersCacheSize:      sources.DefaultEthClientConfig().HeadersCacheSize,
	})
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	return &L2Source{
		Portal:    portal,
		Name:      name,
		Assembler: NewAssembler(lgr, ethClient, r.cfg.ProofBatchSize),
		client:    ethClient,
		refs:      1,
	}, nil
}

// Close closes every open L2 connection.
func (r *Registry) Close() {
	r.cache.Close()
	r.m.RecordL2Sources(0)
}
