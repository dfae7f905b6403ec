package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/interfaces"
)

// ArticleHandler exposes article queries over HTTP
type ArticleHandler struct {
	articles interfaces.ArticleStorage
	logger   arbor.ILogger
}

func NewArticleHandler(articles interfaces.ArticleStorage, logger arbor.ILogger) *ArticleHandler {
	return &ArticleHandler{
		articles: articles,
		logger:   logger,
	}
}

// ListHandler handles GET /api/articles with filter query parameters
func (h *ArticleHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	filter := &interfaces.ArticleFilter{
		TaskID:      r.URL.Query().Get("task_id"),
		Keywords:    r.URL.Query().Get("keywords"),
		Category:    r.URL.Query().Get("category"),
		Source:      r.URL.Query().Get("source"),
		IsScraped:   QueryBool(r, "is_scraped"),
		IsAIRelated: QueryBool(r, "is_ai_related"),
		SortBy:      r.URL.Query().Get("sort_by"),
		SortDesc:    r.URL.Query().Get("order") == "desc",
		Page:        QueryInt(r, "page", 0),
		PerPage:     QueryInt(r, "per_page", 20),
	}
	if tags := r.URL.Query().Get("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}

	articles, total, err := h.articles.FindAdvanced(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Article query failed")
		WriteError(w, http.StatusInternalServerError, "failed to query articles")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":    total,
		"articles": articles,
	})
}

// SearchHandler handles GET /api/articles/search?q=... keyword search
func (h *ArticleHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		WriteError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	limit := QueryInt(r, "limit", 20)
	offset := QueryInt(r, "offset", 0)
	sortBy := r.URL.Query().Get("sort_by")
	sortDesc := r.URL.Query().Get("order") == "desc"

	articles, err := h.articles.FindByKeywords(r.Context(), q, limit, offset, sortBy, sortDesc)
	if err != nil {
		h.logger.Error().Err(err).Str("query", q).Msg("Keyword search failed")
		WriteError(w, http.StatusInternalServerError, "failed to search articles")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(articles),
		"articles": articles,
	})
}

// LookupHandler handles GET /api/articles/lookup?link=... single-row lookup
func (h *ArticleHandler) LookupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	link := r.URL.Query().Get("link")
	if link == "" {
		WriteError(w, http.StatusBadRequest, "query parameter link is required")
		return
	}

	article, err := h.articles.FindByLink(r.Context(), link)
	if err != nil {
		h.logger.Error().Err(err).Msg("Article lookup failed")
		WriteError(w, http.StatusInternalServerError, "failed to look up article")
		return
	}
	if article == nil {
		WriteError(w, http.StatusNotFound, "article not found")
		return
	}

	WriteJSON(w, http.StatusOK, article)
}
