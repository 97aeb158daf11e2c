package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/ccip"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/config"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/evmgateway"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/frontend"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/metrics"
	"github.com/mantlenetworkio/ccip-gateway/op-gateway/proofs"
	"github.com/mantlenetworkio/ccip-gateway/op-service/cliapp"
	"github.com/mantlenetworkio/ccip-gateway/op-service/client"
	"github.com/mantlenetworkio/ccip-gateway/op-service/httputil"
	opmetrics "github.com/mantlenetworkio/ccip-gateway/op-service/metrics"
	"github.com/mantlenetworkio/ccip-gateway/op-service/oppprof"
	"github.com/mantlenetworkio/ccip-gateway/op-service/sources"
)

type Service struct {
	closing atomic.Bool

	log log.Logger

	metrics    metrics.Metricer
	metricsSrv *httputil.HTTPServer

	pprofService *oppprof.Service

	l1       *sources.EthClient
	lookup   *proofs.OutputLookup
	registry *proofs.Registry
	proofs   *proofs.Service
	router   *ccip.Router

	httpServer *httputil.HTTPServer
}

var _ cliapp.Lifecycle = (*Service)(nil)

func FromConfig(ctx context.Context, cfg *config.Config, logger log.Logger) (*Service, error) {
	su := &Service{log: logger}
	if err := su.initFromCLIConfig(ctx, cfg); err != nil {
		return nil, errors.Join(err, su.Stop(ctx)) // try to clean up our failed initialization attempt
	}
	return su, nil
}

func (s *Service) initFromCLIConfig(ctx context.Context, cfg *config.Config) error {
	s.initMetrics(cfg)
	if err := s.initPProf(cfg); err != nil {
		return fmt.Errorf("failed to start PProf server: %w", err)
	}
	if err := s.initMetricsServer(cfg); err != nil {
		return fmt.Errorf("failed to start Metrics server: %w", err)
	}
	if err := s.initL1(ctx, cfg); err != nil {
		return fmt.Errorf("failed to init L1 client: %w", err)
	}
	if err := s.initRegistry(cfg); err != nil {
		return fmt.Errorf("failed to init L2 registry: %w", err)
	}
	s.proofs = proofs.NewService(s.log.New("module", "proofs"), s.lookup, s.registry,
		proofs.ServiceConfig{TrustRPC: cfg.L2.TrustRPC}, s.metrics)
	if err := s.initRouter(cfg); err != nil {
		return fmt.Errorf("failed to init router: %w", err)
	}
	s.initHTTPServer(cfg)
	return nil
}

func (s *Service) initMetrics(cfg *config.Config) {
	if cfg.MetricsConfig.Enabled {
		procName := "default"
		s.metrics = metrics.NewMetrics(procName)
		s.metrics.RecordInfo(cfg.Version)
	} else {
		s.metrics = metrics.NoopMetrics{}
	}
}

func (s *Service) initPProf(cfg *config.Config) error {
	s.pprofService = oppprof.New(
		cfg.PprofConfig.ListenEnabled,
		cfg.PprofConfig.ListenAddr,
		cfg.PprofConfig.ListenPort,
		cfg.PprofConfig.ProfileType,
		cfg.PprofConfig.ProfileDir,
	)

	if err := s.pprofService.Start(); err != nil {
		return fmt.Errorf("failed to start pprof service: %w", err)
	}
	if endpoint := s.pprofService.HTTPEndpoint(); endpoint != "" {
		s.log.Info("Started pprof server", "endpoint", endpoint)
	}
	return nil
}

func (s *Service) initMetricsServer(cfg *config.Config) error {
	if !cfg.MetricsConfig.Enabled {
		s.log.Info("Metrics disabled")
		return nil
	}
	m, ok := s.metrics.(opmetrics.RegistryMetricer)
	if !ok {
		return fmt.Errorf("metrics were enabled, but metricer %T does not expose registry for metrics-server", s.metrics)
	}
	s.log.Debug("Starting metrics server", "addr", cfg.MetricsConfig.ListenAddr, "port", cfg.MetricsConfig.ListenPort)
	metricsSrv, err := opmetrics.StartServer(m.Registry(), cfg.MetricsConfig.ListenAddr, cfg.MetricsConfig.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	s.log.Info("Started metrics server", "addr", metricsSrv.Addr())
	s.metricsSrv = metricsSrv
	return nil
}

func (s *Service) initL1(ctx context.Context, cfg *config.Config) error {
	lgr := s.log.New("module", "l1")
	endpoints := make([]client.Endpoint, 0, len(cfg.L1.RPCs))
	for i, addr := range cfg.L1.RPCs {
		name := "l1_" + strconv.Itoa(i)
		rpc, err := client.NewRPC(ctx, lgr, addr,
			client.WithCallTimeout(cfg.L1.CallTimeout),
			client.WithBatchCallTimeout(cfg.L1.CallTimeout))
		if err != nil {
			for _, e := range endpoints {
				e.RPC.Close()
			}
			return fmt.Errorf("failed to dial L1 endpoint %s: %w", name, err)
		}
		endpoints = append(endpoints, client.Endpoint{
			Name: name,
			RPC:  client.NewInstrumentedRPC(rpc, name, s.metrics),
		})
	}
	fallback, err := client.NewFallbackRPC(lgr, endpoints, cfg.L1.StallTimeout, s.metrics)
	if err != nil {
		return err
	}
	l1, err := sources.NewEthClient(fallback, lgr, s.metrics, &sources.EthClientConfig{})
	if err != nil {
		fallback.Close()
		return err
	}
	s.l1 = l1
	s.lookup = proofs.NewOutputLookup(lgr, l1, cfg.L1.LookupAddress)
	s.log.Info("Configured L1 endpoints", "count", len(endpoints), "lookup", cfg.L1.LookupAddress)
	return nil
}

func (s *Service) initRegistry(cfg *config.Config) error {
	static := proofs.DefaultStaticRegistry()
	if cfg.L2.RegistryPath != "" {
		loaded, err := proofs.LoadStaticRegistry(cfg.L2.RegistryPath)
		if err != nil {
			return err
		}
		static = static.Merge(loaded)
		s.log.Info("Loaded L2 registry", "path", cfg.L2.RegistryPath, "chains", len(loaded))
	}
	registry, err := proofs.NewRegistry(s.log.New("module", "registry"), proofs.RegistryConfig{
		Static:         static,
		CacheSize:      cfg.L2.CacheSize,
		CallTimeout:    cfg.L2.CallTimeout,
		MaxConcurrency: cfg.L2.MaxConcurrency,
		ProofBatchSize: cfg.L2.ProofBatchSize,
	}, s.metrics)
	if err != nil {
		return err
	}
	s.registry = registry
	return nil
}

func (s *Service) initRouter(cfg *config.Config) error {
	s.router = ccip.NewRouter(s.log.New("module", "router"), ccip.WithMetrics(s.metrics))
	gw := evmgateway.NewGateway(s.log.New("module", "evmgateway"), s.proofs, cfg.Gateway, s.metrics)
	return gw.Register(s.router)
}

func (s *Service) initHTTPServer(cfg *config.Config) {
	srv := frontend.NewServer(s.log.New("module", "frontend"), s.router, frontend.Config{
		Version:     cfg.Version,
		CORSOrigins: cfg.RPC.CORSOrigins,
		RateLimit:   cfg.RPC.RateLimit,
		RateBurst:   cfg.RPC.RateBurst,
	}, s.metrics)
	endpoint := net.JoinHostPort(cfg.RPC.ListenAddr, strconv.Itoa(cfg.RPC.ListenPort))
	s.httpServer = httputil.NewHTTPServer(endpoint, srv.Handler())
}

func (s *Service) Start(ctx context.Context) error {
	s.log.Info("Starting gateway server")
	if err := s.httpServer.Start(); err != nil {
		return fmt.Errorf("unable to start gateway server: %w", err)
	}

	s.metrics.RecordUp()
	s.log.Info("Gateway server started", "endpoint", s.httpServer.HTTPEndpoint())
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if !s.closing.CompareAndSwap(false, true) {
		s.log.Warn("Already closing")
		return nil // already closing
	}
	s.log.Info("Stopping gateway server")
	var result error
	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
	}
	s.log.Info("Stopped gateway server")
	if s.registry != nil {
		s.registry.Close()
	}
	if s.l1 != nil {
		s.l1.Close()
	}
	s.log.Info("Closed RPC clients")
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	if s.pprofService != nil {
		if err := s.pprofService.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop PProf server: %w", err))
		}
		s.log.Info("Stopped PProf")
	}
	s.log.Info("Gateway stopped")
	return result
}

func (s *Service) Stopped() bool {
	return s.closing.Load()
}

// HTTPEndpoint returns the base URL of the gateway.
func (s *Service) HTTPEndpoint() string {
	return s.httpServer.HTTPEndpoint()
}

// MetricsEndpoint returns the address of the metrics server, empty when metrics are disabled.
func (s *Service) MetricsEndpoint() string {
	if s.metricsSrv == nil {
		return ""
	}
	return s.metricsSrv.HTTPEndpoint()
}

// PprofEndpoint returns the address of the pprof server, empty when it is disabled.
func (s *Service) PprofEndpoint() string {
	if s.pprofService == nil {
		return ""
	}
	return s.pprofService.HTTPEndpoint()
}
