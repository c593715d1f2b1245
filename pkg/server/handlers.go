package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"glotta-hq/hermes/pkg/coordinator"
	"glotta-hq/hermes/pkg/fetch"
	"glotta-hq/hermes/pkg/limits/costguard"
	"glotta-hq/hermes/pkg/limits/ratelimit"
)

// lookupRequest is the wire format of a batch lookup request.
type lookupRequest struct {
	Words    []string `json:"words"`
	Language string   `json:"language"`
	Caller   string   `json:"caller,omitempty"`
}

// lookupResponse is the wire format of a batch lookup response. On a
// rejection or upstream failure the cached portion is still included and
// Error explains the rest.
type lookupResponse struct {
	ID        string            `json:"id"`
	Language  string            `json:"language"`
	Results   map[string]string `json:"results"`
	Missing   []string          `json:"missing,omitempty"`
	CacheHits int               `json:"cache_hits"`
	Fetched   int               `json:"fetched"`
	Error     string            `json:"error,omitempty"`
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Language == "" {
		http.Error(w, "language is required", http.StatusBadRequest)
		return
	}

	caller := req.Caller
	if caller == "" {
		caller = callerFromRequest(r)
	}

	result, err := s.coord.LookupBatch(r.Context(), coordinator.BatchRequest{
		Words:    req.Words,
		Language: req.Language,
		Caller:   caller,
	})

	resp := lookupResponse{
		ID:        result.ID,
		Language:  result.Language,
		Results:   result.Results,
		Missing:   result.Missing,
		CacheHits: result.CacheHits,
		Fetched:   result.Fetched,
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = statusForError(err)

		var limitErr *ratelimit.LimitExceededError
		if errors.As(err, &limitErr) && limitErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(limitErr.RetryAfter.Seconds())+1))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		s.logger.Error("failed to encode response", "error", encodeErr)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// statusForError maps pipeline errors to HTTP statuses. The cached
// portion of the batch rides along in the body regardless.
func statusForError(err error) int {
	var limitErr *ratelimit.LimitExceededError
	if errors.As(err, &limitErr) {
		return http.StatusTooManyRequests
	}
	var costErr *costguard.CostLimitError
	if errors.As(err, &costErr) {
		return http.StatusTooManyRequests
	}
	var breakerErr *costguard.BreakerOpenError
	if errors.As(err, &breakerErr) {
		return http.StatusServiceUnavailable
	}
	var netErr *fetch.NetworkError
	if errors.As(err, &netErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// callerFromRequest derives a rate limiting identifier when the request
// does not name one.
func callerFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
