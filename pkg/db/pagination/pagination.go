package pagination

// Pagination carries the page request as bound from query parameters.
type Pagination struct {
	Page     int `form:"page"`
	PageSize int `form:"pageSize"`
}

// Page describes one window over a filtered result set.
type Page struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasPrev    bool `json:"hasPrev"`
	HasNext    bool `json:"hasNext"`
}

// Normalize resolves a requested page size against a default and a cap.
func Normalize(pageSize, def, max int) int {
	if pageSize <= 0 {
		pageSize = def
	}
	if max > 0 && pageSize > max {
		pageSize = max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// Build computes page metadata. The requested page is clamped to
// [1, totalPages], and totalPages is at least 1 even when total is 0.
func Build(total, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = 1
	}
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return Page{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
}

// Slice returns the items belonging to p.
func Slice[T any](items []T, p Page) []T {
	start := (p.Page - 1) * p.PageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Paginate clamps the page and slices items in one step.
func Paginate[T any](items []T, page, pageSize int) ([]T, Page) {
	p := Build(len(items), page, pageSize)
	return Slice(items, p), p
}
