// Package proxy implements a concurrent forward HTTP proxy in front of
// a shared in-memory response cache. Clients send absolute-URI GET
// requests; responses small enough to cache are stored serialized and
// replayed on subsequent requests for the same URI.
package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/j-helland/proxy-lab/cache"
	"github.com/j-helland/proxy-lab/internal/singleflight"
)

// userAgent replaces whatever the client sent on upstream requests.
const userAgent = "Mozilla/5.0" +
	" (X11; Linux x86_64; rv:3.10.0)" +
	" Gecko/20191101 Firefox/63.0.1"

// Server is the forward proxy. One instance serves all client
// connections; the cache and singleflight group are shared across them.
type Server struct {
	cfg     Config
	cache   *cache.Cache
	flights singleflight.Group
	client  *http.Client
	log     zerolog.Logger
}

// NewServer wires a proxy server around an existing cache. The cache
// stays owned by the caller; Close it after Run returns.
func NewServer(cfg Config, c *cache.Cache, logger zerolog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		cache: c,
		client: &http.Client{
			Transport: &http.Transport{
				// Upstream connections are closed after each exchange,
				// matching the Connection: close we send.
				DisableKeepAlives: true,
			},
			// The proxy relays redirects to the client untouched.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: logger,
	}
}

// Run serves the proxy listener and, if configured, the admin server
// until ctx is cancelled, then shuts both down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	proxySrv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	g.Go(func() error {
		s.log.Info().Str("addr", s.cfg.Listen).Msg("proxy listening")
		if err := proxySrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var adminSrv *http.Server
	if s.cfg.AdminListen != "" {
		adminSrv = &http.Server{
			Addr:    s.cfg.AdminListen,
			Handler: s.adminHandler(),
		}
		g.Go(func() error {
			s.log.Info().Str("addr", s.cfg.AdminListen).Msg("admin listening")
			if err := adminSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := proxySrv.Shutdown(shutCtx)
		if adminSrv != nil {
			if aerr := adminSrv.Shutdown(shutCtx); err == nil {
				err = aerr
			}
		}
		return err
	})

	return g.Wait()
}

// ServeHTTP handles one client request: refuse what the proxy does not
// implement, answer hits from the cache, and fetch misses upstream.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodGet {
		// CONNECT lands here too, so https tunneling is refused as well.
		http.Error(w, "proxy does not implement "+r.Method, http.StatusNotImplemented)
		s.logRequest(r, "refused", http.StatusNotImplemented, start)
		return
	}
	if !r.URL.IsAbs() {
		http.Error(w, "proxy requires an absolute request URI", http.StatusBadRequest)
		s.logRequest(r, "refused", http.StatusBadRequest, start)
		return
	}
	if r.URL.Scheme != "http" {
		http.Error(w, "proxy does not implement "+r.URL.Scheme, http.StatusNotImplemented)
		s.logRequest(r, "refused", http.StatusNotImplemented, start)
		return
	}

	uri := r.URL.String()
	key := []byte(uri)

	if h, ok := s.cache.Find(key); ok {
		err := writeSerialized(w, r, h.Value())
		h.Release()
		if err != nil {
			s.log.Debug().Err(err).Str("url", uri).Msg("write-back failed")
		}
		s.logRequest(r, "hit", http.StatusOK, start)
		return
	}

	raw, err := s.flights.Do(r.Context(), uri, func() ([]byte, error) {
		return s.fetchSerialized(r)
	})
	switch {
	case errors.Is(err, errObjectTooLarge):
		// Too big to buffer; stream it straight through, uncached.
		s.relayUncached(w, r)
		s.logRequest(r, "uncached", http.StatusOK, start)
		return
	case err != nil:
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		s.log.Warn().Err(err).Str("url", uri).Msg("upstream fetch failed")
		s.logRequest(r, "error", http.StatusBadGateway, start)
		return
	}

	// Concurrent misses share one fetch, so several goroutines may
	// arrive here with the same bytes. Insert tolerates the duplicates.
	res := s.cache.Insert(key, raw)
	if res == cache.IndexFull {
		s.log.Warn().Str("url", uri).Msg("cache index full, response not cached")
	}

	if err := writeSerialized(w, r, raw); err != nil {
		s.log.Debug().Err(err).Str("url", uri).Msg("write-back failed")
	}
	s.logRequest(r, "miss", http.StatusOK, start)
}

func (s *Server) logRequest(r *http.Request, status string, code int, start time.Time) {
	s.log.Info().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("remote", r.RemoteAddr).
		Str("cache", status).
		Int("code", code).
		Dur("elapsed", time.Since(start)).
		Msg("request")
}
