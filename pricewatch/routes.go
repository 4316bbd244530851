package pricewatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pricewatch/history"
	"github.com/hazyhaar/pricewatch/kit"
	"github.com/hazyhaar/pricewatch/scrape"
	"github.com/hazyhaar/pricewatch/shield"
)

// Routes returns the HTTP surface behind the shield middleware: health, the
// selector leaderboard, per domain selector listings and tracking. A non-nil mcpSrv is also served
// over streamable HTTP at /mcp.
func (s *Service) Routes(mcpSrv *mcp.Server) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(tagRequest)
	for _, mw := range shield.APIStack(s.cfg.Shield, s.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tiers": s.scraper.Tiers()})
	})
	r.Get("/leaderboard", s.handleLeaderboard)
	r.Get("/selectors/{domain}", s.handleSelectors)
	r.Post("/track", s.handleTrack)

	if mcpSrv != nil {
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		r.Handle("/mcp", h)
	}
	return r
}

func tagRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = kit.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	page, err := s.selectors.LeaderboardHTML(r.Context())
	if err != nil {
		s.logger.Error("pricewatch: leaderboard", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Service) handleSelectors(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	field := r.URL.Query().Get("field")
	var (
		sels any
		err  error
	)
	if field != "" {
		sels, err = s.selectors.SelectorsFor(r.Context(), domain, field)
	} else {
		sels, err = s.selectors.SelectorsForDomain(r.Context(), domain)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": domain, "selectors": sels})
}

func (s *Service) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	track := s.logged("http_track", func(ctx context.Context, req any) (any, error) {
		return s.Track(ctx, req.(TrackRequest))
	})
	res, err := track(r.Context(), req)
	if err != nil {
		writeError(w, trackStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// trackStatus maps a Track failure to an HTTP status.
func trackStatus(err error) int {
	var ex *scrape.ExhaustedError
	switch {
	case errors.As(err, &ex):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case isInputError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isInputError(err error) bool {
	return errors.Is(err, scrape.ErrInvalidTarget) || errors.Is(err, history.ErrInvalidObservation)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
