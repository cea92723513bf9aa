// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault converts s to an int. An empty or unparsable s yields def.
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Page is a resolved page request.
type Page struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// Paginate clamps page (1-based) and size into range for a list of total
// items and returns the slice bounds [start, end). size is capped at maxSize;
// a size < 1 becomes maxSize.
func Paginate(total, page, size, maxSize int) (Page, int, int) {
	if maxSize < 1 {
		maxSize = 1
	}
	if size < 1 || size > maxSize {
		size = maxSize
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return Page{Page: page, PageSize: size, Total: total}, start, end
}
