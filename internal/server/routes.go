package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - per-task progress stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Tasks
	mux.HandleFunc("/api/tasks", s.app.TaskHandler.CollectionHandler)       // GET (list), POST (create)
	mux.HandleFunc("/api/tasks/validate", s.app.TaskHandler.ValidateHandler) // POST - dry-run create validation
	mux.HandleFunc("/api/tasks/", s.app.TaskHandler.ItemHandler)            // GET/PUT/DELETE /{id} and sub-resources

	// API routes - Articles
	mux.HandleFunc("/api/articles", s.app.ArticleHandler.ListHandler)
	mux.HandleFunc("/api/articles/search", s.app.ArticleHandler.SearchHandler)
	mux.HandleFunc("/api/articles/lookup", s.app.ArticleHandler.LookupHandler)

	// API routes - Crawlers
	mux.HandleFunc("/api/crawlers", s.app.CrawlerHandler.CollectionHandler) // GET (list), POST (register)
	mux.HandleFunc("/api/crawlers/", s.app.CrawlerHandler.ItemHandler)      // GET /{id}

	// API routes - Logs
	mux.HandleFunc("/api/logs/recent", s.app.LogsHandler.RecentLogsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
