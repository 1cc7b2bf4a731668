package proxy

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
)

// errObjectTooLarge marks a response whose serialized form exceeds
// MaxObjectSize. The caller falls back to an uncached streaming relay.
var errObjectTooLarge = errors.New("proxy: response exceeds max object size")

// outboundRequest builds the upstream request for a client request.
// Hop-by-hop headers are pinned and the client's User-Agent is replaced;
// everything else is forwarded as received.
func (s *Server) outboundRequest(r *http.Request) (*http.Request, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, r.URL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	req.Header.Set("Connection", "close")
	req.Header.Set("Proxy-Connection", "close")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// fetchSerialized performs the upstream fetch for a cache miss and
// returns the serialized response (status line, headers, body) ready
// for storage and write-back. Responses that would not fit under
// MaxObjectSize return errObjectTooLarge with nothing buffered beyond
// the limit.
func (s *Server) fetchSerialized(r *http.Request) ([]byte, error) {
	req, err := s.outboundRequest(r)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := s.cfg.MaxObjectSize
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("proxy: read upstream body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, errObjectTooLarge
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.TransferEncoding = nil

	raw, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return nil, fmt.Errorf("proxy: serialize response: %w", err)
	}
	if int64(len(raw)) > limit {
		return nil, errObjectTooLarge
	}
	return raw, nil
}

// relayUncached streams an upstream response straight to the client
// without buffering it whole. Used when the object is too large to
// cache.
func (s *Server) relayUncached(w http.ResponseWriter, r *http.Request) {
	req, err := s.outboundRequest(r)
	if err != nil {
		http.Error(w, "bad upstream request", http.StatusBadGateway)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.log.Debug().Err(err).Str("url", r.URL.String()).Msg("streaming relay interrupted")
	}
}

// writeSerialized replays a serialized response to the client.
func writeSerialized(w http.ResponseWriter, r *http.Request, raw []byte) error {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), r)
	if err != nil {
		return fmt.Errorf("proxy: parse stored response: %w", err)
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, err = io.Copy(w, resp.Body)
	return err
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
