package api

import (
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"bytematch/internal/classify"
	"bytematch/internal/rules"
	"bytematch/pkg/matcher"
)

// maxBody bounds rule documents and match inputs.
const maxBody = 1 << 20

type ShadowedResponse struct {
	Stats    matcher.Stats    `json:"stats"`
	Shadowed []matcher.Shadow `json:"shadowed"`
}

type Server struct {
	port    string
	verbose bool
	handler *classify.Handler
}

func NewServer(port string, verbose bool, handler *classify.Handler) *Server {
	return &Server{
		port:    port,
		verbose: verbose,
		handler: handler,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/rules", s.handleRulesUpdate)
	mux.HandleFunc("/api/rules/shadowed", s.handleShadowed)
	mux.HandleFunc("/api/match", s.handleMatch)
	return mux
}

func (s *Server) Start() error {
	if s.verbose {
		log.Info().Msgf("API server starting on %s", s.port)
	}

	return http.ListenAndServe(s.port, s.Routes())
}

func (s *Server) handleRulesUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var doc rules.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&doc); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if len(doc.Rules) == 0 {
		http.Error(w, "Rule set cannot be empty", http.StatusBadRequest)
		return
	}

	rs, err := doc.Set()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.verbose {
		log.Info().Msgf("Received rule set update request with %d rules", len(rs.Rules))
	}

	if err := s.handler.Update(rs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Rule set updated successfully",
		"count":   len(rs.Rules),
	})
}

func (s *Server) handleShadowed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	t := s.handler.Trie()
	if t == nil {
		http.Error(w, classify.ErrNoRuleSet.Error(), http.StatusServiceUnavailable)
		return
	}

	shadowed := t.Shadowed()
	if shadowed == nil {
		shadowed = []matcher.Shadow{}
	}
	writeJSON(w, http.StatusOK, ShadowedResponse{Stats: t.Stats(), Shadowed: shadowed})
}

// handleMatch classifies the request body. The body is read only as far
// as the match needs.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := s.handler.Classify(matcher.Reader(http.MaxBytesReader(w, r.Body, maxBody)), "http")
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, classify.ErrNoRuleSet) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}
