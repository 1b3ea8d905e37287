// Copyright (c) 2026 FieldServe. All rights reserved.

// Package pagination provides page-based navigation for API list endpoints,
// such as the admin principal roster.
//
// # Overview
//
// It standardizes how a page window is requested via query parameters and how
// the resulting metadata is delivered alongside the list payload, so every
// listing in the API paginates the same way.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	// DefaultLimit is the number of items per page when the client does not
	// ask for one.
	DefaultLimit = 20
	// MaxLimit caps items per page; roster listings can grow with the fleet
	// and a single response must stay bounded.
	MaxLimit = 100
	// DefaultPage is the starting page (1-indexed).
	DefaultPage = 1
)

// Params holds the parsed page and limit from a request's query string.
type Params struct {
	Page  int
	Limit int
}

// Offset returns the SQL OFFSET value derived from Page and Limit.
func (params Params) Offset() int {
	if params.Page <= 1 {
		return 0
	}
	return (params.Page - 1) * params.Limit
}

// Meta is the pagination block included next to every list payload.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewMeta constructs the metadata for a response, deriving TotalPages from
// the total row count and the page size.
func NewMeta(page, limit, total int) Meta {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return Meta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// FromRequest parses the "page" and "limit" query parameters.
//
// # Clamping
//
// Invalid, negative, or excessive values fall back to [DefaultPage],
// [DefaultLimit], or [MaxLimit]. A bad query string never fails a listing.
func FromRequest(request *http.Request) Params {
	page := queryInt(request, "page", DefaultPage)
	limit := queryInt(request, "limit", DefaultLimit)

	if page < 1 {
		page = DefaultPage
	}

	if limit < 1 || limit > MaxLimit {
		limit = DefaultLimit
	}

	return Params{Page: page, Limit: limit}
}

// queryInt parses one integer query parameter with a fallback default.
func queryInt(request *http.Request, key string, fallback int) int {
	raw := request.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return value
}
