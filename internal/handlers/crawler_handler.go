package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
)

// CrawlerHandler exposes crawler registration over HTTP
type CrawlerHandler struct {
	crawlers interfaces.CrawlerStorage
	logger   arbor.ILogger
}

func NewCrawlerHandler(crawlers interfaces.CrawlerStorage, logger arbor.ILogger) *CrawlerHandler {
	return &CrawlerHandler{
		crawlers: crawlers,
		logger:   logger,
	}
}

// CollectionHandler handles /api/crawlers: GET lists, POST registers
func (h *CrawlerHandler) CollectionHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listCrawlers(w, r)
	case http.MethodPost:
		h.createCrawler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CrawlerHandler) listCrawlers(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := QueryBool(r, "active_only"); v != nil {
		activeOnly = *v
	}

	crawlers, err := h.crawlers.ListCrawlers(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error().Err(err).Msg("Crawler list failed")
		WriteError(w, http.StatusInternalServerError, "failed to list crawlers")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(crawlers),
		"crawlers": crawlers,
	})
}

func (h *CrawlerHandler) createCrawler(w http.ResponseWriter, r *http.Request) {
	var crawler models.Crawler
	if err := json.NewDecoder(r.Body).Decode(&crawler); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if crawler.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	if existing, err := h.crawlers.GetCrawlerByName(r.Context(), crawler.Name); err == nil && existing != nil {
		WriteError(w, http.StatusConflict, "crawler name already registered")
		return
	}

	now := time.Now().UTC()
	crawler.ID = common.NewCrawlerID()
	crawler.CreatedAt = now
	crawler.UpdatedAt = now

	if err := h.crawlers.SaveCrawler(r.Context(), &crawler); err != nil {
		h.logger.Error().Err(err).Str("crawler_name", crawler.Name).Msg("Crawler save failed")
		WriteError(w, http.StatusInternalServerError, "failed to save crawler")
		return
	}

	h.logger.Info().
		Str("crawler_id", crawler.ID).
		Str("crawler_name", crawler.Name).
		Msg("Crawler registered")
	WriteJSON(w, http.StatusCreated, &crawler)
}

// ItemHandler handles GET /api/crawlers/{id}
func (h *CrawlerHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	crawlerID := PathID(r, "/api/crawlers/")
	if crawlerID == "" {
		WriteError(w, http.StatusBadRequest, "crawler id is required")
		return
	}

	crawler, err := h.crawlers.GetCrawler(r.Context(), crawlerID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Crawler lookup failed")
		WriteError(w, http.StatusInternalServerError, "failed to look up crawler")
		return
	}
	if crawler == nil {
		WriteError(w, http.StatusNotFound, "crawler not found")
		return
	}

	WriteJSON(w, http.StatusOK, crawler)
}
