package utils

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

func RespondWithFieldError(w http.ResponseWriter, code int, field, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message, Field: field})
}

// ParsePagination reads page and page_size, defaulting and clamping both.
func ParsePagination(r *http.Request, defaultSize, maxSize int) (page, pageSize int) {
	query := r.URL.Query()

	page = 1
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 0 {
		page = p
	}
	pageSize = defaultSize
	if s, err := strconv.Atoi(query.Get("page_size")); err == nil && s > 0 {
		pageSize = s
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// Paginated is the list envelope used by every collection endpoint.
func Paginated(key string, items interface{}, total int64, page, pageSize int) map[string]interface{} {
	return map[string]interface{}{
		key:           items,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": TotalPages(total, pageSize),
	}
}
