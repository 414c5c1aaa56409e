package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/metroloop/metroloop/common"
	"github.com/rs/cors"
)

// defaultOrigins admits pages served from this machine.
var defaultOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(common.RouteSnapshot, s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc(common.RouteSocket, s.handleSocket).Methods(http.MethodGet)
	r.Handle(common.RouteRPC, s.rpc.bridge).Methods(http.MethodPost)
	r.HandleFunc(common.RouteRPCSocket, s.handleRPCSocket).Methods(http.MethodGet)
	r.Use(func(next http.Handler) http.Handler {
		return requireToken(s.cfg.Secret, next)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// originPatterns converts allowed origins into the host patterns used by
// the WebSocket origin check.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		patterns = append(patterns, strings.TrimSuffix(o, "/"))
	}
	return patterns
}
