package oppprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/pkg/profile"

	"github.com/mantlenetworkio/ccip-gateway/op-service/httputil"
)

// Service runs the optional pprof HTTP endpoint and the optional on-disk profile.
type Service struct {
	listenEnabled bool
	listenAddr    string
	listenPort    int

	profileType ProfileType
	profileDir  string

	httpServer *httputil.HTTPServer
	profile    interface{ Stop() }
}

func New(listenEnabled bool, listenAddr string, listenPort int, profType ProfileType, profileDir string) *Service {
	return &Service{
		listenEnabled: listenEnabled,
		listenAddr:    listenAddr,
		listenPort:    listenPort,
		profileType:   profType,
		profileDir:    profileDir,
	}
}

func (s *Service) Start() error {
	if s.profileType != ProfileNone {
		mode, err := profileMode(s.profileType)
		if err != nil {
			return err
		}
		opts := []func(*profile.Profile){mode, profile.NoShutdownHook, profile.Quiet}
		if s.profileDir != "" {
			opts = append(opts, profile.ProfilePath(s.profileDir))
		}
		s.profile = profile.Start(opts...)
	}
	if s.listenEnabled {
		addr := net.JoinHostPort(s.listenAddr, strconv.Itoa(s.listenPort))
		srv, err := httputil.StartHTTPServer(addr, Handler(), httputil.WithTimeouts(httputil.HTTPTimeouts{ReadHeaderTimeout: httputil.DefaultTimeouts.ReadHeaderTimeout}))
		if err != nil {
			s.stopProfile()
			return fmt.Errorf("failed to start pprof server: %w", err)
		}
		s.httpServer = srv
	}
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	var result error
	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop pprof server: %w", err))
		}
	}
	s.stopProfile()
	return result
}

func (s *Service) stopProfile() {
	if s.profile != nil {
		s.profile.Stop()
		s.profile = nil
	}
}

// HTTPEndpoint is empty when the pprof server is disabled.
func (s *Service) HTTPEndpoint() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.HTTPEndpoint()
}

// Handler serves the runtime profiles under /debug/pprof/.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func profileMode(t ProfileType) (func(*profile.Profile), error) {
	switch t {
	case ProfileCPU:
		return profile.CPUProfile, nil
	case ProfileHeap:
		return profile.MemProfileHeap, nil
	case ProfileAllocs:
		return profile.MemProfileAllocs, nil
	case ProfileMutex:
		return profile.MutexProfile, nil
	case ProfileBlock:
		return profile.BlockProfile, nil
	case ProfileGoroutine:
		return profile.GoroutineProfile, nil
	case ProfileThreadCreate:
		return profile.ThreadcreationProfile, nil
	case ProfileTrace:
		return profile.TraceProfile, nil
	default:
		return nil, fmt.Errorf("unknown profile type: %q", t)
	}
}
