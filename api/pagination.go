// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

const (
	DefaultPaginationCount    = 100
	MaxPaginationCount        = 100
	DefaultPaginationPage     = 1
	DefaultPaginationOrderAsc = "asc"
	PaginationOrderDesc       = "desc"
)

var ErrInvalidPaginationParameters = errors.New(
	"invalid pagination parameters",
)

// PaginationParams contains parsed pagination query values
type PaginationParams struct {
	Count int
	Page  int
	Order string
}

// Offset returns the index of the first item of the page
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Count
}

func (p PaginationParams) Descending() bool {
	return p.Order == PaginationOrderDesc
}

// ParsePagination parses the page, count and order query parameters.
// Malformed or out of range values return ErrInvalidPaginationParameters.
func ParsePagination(r *http.Request) (PaginationParams, error) {
	params := PaginationParams{
		Count: DefaultPaginationCount,
		Page:  DefaultPaginationPage,
		Order: DefaultPaginationOrderAsc,
	}
	query := r.URL.Query()
	if countParam := query.Get("count"); countParam != "" {
		count, err := strconv.Atoi(countParam)
		if err != nil || count < 1 || count > MaxPaginationCount {
			return PaginationParams{}, ErrInvalidPaginationParameters
		}
		params.Count = count
	}
	if pageParam := query.Get("page"); pageParam != "" {
		page, err := strconv.Atoi(pageParam)
		// Keep the offset within int range
		if err != nil || page < 1 || page > (1<<31)/MaxPaginationCount {
			return PaginationParams{}, ErrInvalidPaginationParameters
		}
		params.Page = page
	}
	if orderParam := query.Get("order"); orderParam != "" {
		convertedOrder := strings.ToLower(orderParam)
		switch convertedOrder {
		case DefaultPaginationOrderAsc, PaginationOrderDesc:
			params.Order = convertedOrder
		default:
			return PaginationParams{}, ErrInvalidPaginationParameters
		}
	}
	return params, nil
}

// SetPaginationHeaders sets the total item and page count headers
func SetPaginationHeaders(
	w http.ResponseWriter,
	totalItems uint64,
	params PaginationParams,
) {
	count := uint64(max(params.Count, 1)) // #nosec G115
	totalPages := (totalItems + count - 1) / count
	w.Header().Set(
		"X-Pagination-Count-Total",
		strconv.FormatUint(totalItems, 10),
	)
	w.Header().Set(
		"X-Pagination-Page-Total",
		strconv.FormatUint(totalPages, 10),
	)
}
