// Package frontend serves CCIP-Read lookups over HTTP.
package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/ccip"
)

const (
	maxBodyBytes = 1 << 20

	RouteRoot       = "root"
	RouteHealthz    = "healthz"
	RouteLookupGET  = "lookup_get"
	RouteLookupPOST = "lookup_post"
	routeUnknown    = "unknown"
)

// Dispatcher answers decoded lookups.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *ccip.Request) ccip.Response
}

type Metricer interface {
	RecordHTTPRequest(route string, method string, status int, duration time.Duration)
	RecordRateLimited()
}

type Config struct {
	Version     string
	CORSOrigins []string
	// RateLimit is the number of requests per second allowed per client IP. 0 disables rate limiting.
	RateLimit float64
	RateBurst int
}

type Server struct {
	log        log.Logger
	dispatcher Dispatcher
	m          Metricer
	cfg        Config

	router  *mux.Router
	limiter *ipLimiter
}

func NewServer(log log.Logger, dispatcher Dispatcher, cfg Config, m Metricer) *Server {
	s := &Server{
		log:        log,
		dispatcher: dispatcher,
		m:          m,
		cfg:        cfg,
		router:     mux.NewRouter(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newIPLimiter(cfg.RateLimit, max(cfg.RateBurst, 1))
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/", s.handleHealthz).Methods(http.MethodGet).Name(RouteRoot)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet).Name(RouteHealthz)
	s.router.HandleFunc("/{portal}/{minAge}/{sender}/{callData}.json", s.handleLookupGET).
		Methods(http.MethodGet).Name(RouteLookupGET)
	s.router.HandleFunc("/{portal}/{minAge}", s.handleLookupPOST).
		Methods(http.MethodPost).Name(RouteLookupPOST)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ccip.ResponseBody{Message: http.StatusText(http.StatusNotFound)})
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ccip.ResponseBody{Message: http.StatusText(http.StatusMethodNotAllowed)})
	})
	s.router.Use(s.routeNameMiddleware)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = newCompressionHandler(h)
	h = newCORSHandler(h, s.cfg.CORSOrigins)
	if s.limiter != nil {
		h = s.rateLimitMiddleware(h)
	}
	return s.requestMiddleware(h)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.cfg.Version})
}

func (s *Server) handleLookupGET(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	req, err := parseLookup(vars["portal"], vars["minAge"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Sender, err = parseAddress("sender", vars["sender"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Data, err = parseCallData(vars["callData"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.dispatch(w, r, req)
}

type lookupBody struct {
	Sender string `json:"sender"`
	Data   string `json:"data"`
}

func (s *Server) handleLookupPOST(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	req, err := parseLookup(vars["portal"], vars["minAge"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body lookupBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ccip.ResponseBody{Message: http.StatusText(http.StatusRequestEntityTooLarge)})
			return
		}
		s.writeError(w, r, &ValidationError{Field: "body", Err: err})
		return
	}
	if req.Sender, err = parseAddress("sender", body.Sender); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Data, err = parseCallData(body.Data); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.dispatch(w, r, req)
}

func parseLookup(portal string, minAge string) (*ccip.Request, error) {
	addr, err := parseAddress("portal", portal)
	if err != nil {
		return nil, err
	}
	age, err := parseMinAge(minAge)
	if err != nil {
		return nil, err
	}
	return &ccip.Request{Portal: addr, MinAge: age}, nil
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *ccip.Request) {
	resp := s.dispatcher.Dispatch(r.Context(), req)
	if resp.Status >= http.StatusInternalServerError {
		s.log.Warn("Lookup failed", "id", RequestID(r.Context()), "portal", req.Portal, "sender", req.Sender, "status", resp.Status)
	}
	writeJSON(w, resp.Status, resp.Body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ccip.ResponseBody{Message: verr.Error()})
		return
	}
	s.log.Error("Failed to serve request", "id", RequestID(r.Context()), "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, ccip.ResponseBody{Message: http.StatusText(http.StatusInternalServerError)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
