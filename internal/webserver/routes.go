package webserver

import "net/http"

func registerRoutes(mux *http.ServeMux, h *Handlers, metrics http.Handler) {
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("POST /api/battle", h.HandleCreateBattle)
	mux.HandleFunc("GET /api/battle/{id}", h.HandleGetBattle)
	mux.HandleFunc("DELETE /api/battle/{id}", h.HandleDeleteBattle)
	mux.HandleFunc("GET /api/battles", h.HandleListBattles)
	mux.HandleFunc("GET /api/stats", h.HandleStats)
	mux.HandleFunc("DELETE /api/stats", h.HandleClearStats)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
}

// CORSMiddleware wraps a handler with CORS headers. With no allowed origins
// no CORS header is set. Preflight requests are answered directly.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
