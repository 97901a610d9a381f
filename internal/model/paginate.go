package model

// ItemsPerPage is the feed page size.
const ItemsPerPage = 100

// PageInfo describes one page of a feed.
type PageInfo struct {
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
}

// HasPrev reports whether a previous page exists.
func (p PageInfo) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a next page exists.
func (p PageInfo) HasNext() bool { return p.Page < p.TotalPages }

// Paginate returns the items of the requested 1-based page. An empty list is
// page 1 of 0; pages past the end clamp to the last page.
func Paginate(items []FeedItem, page, perPage int) ([]FeedItem, PageInfo) {
	if perPage <= 0 {
		perPage = ItemsPerPage
	}
	total := (len(items) + perPage - 1) / perPage
	if page < 1 {
		page = 1
	}
	if total > 0 && page > total {
		page = total
	}
	if total == 0 {
		page = 1
	}
	info := PageInfo{Page: page, TotalPages: total, PerPage: perPage, TotalItems: len(items)}

	start := (page - 1) * perPage
	if start >= len(items) {
		return []FeedItem{}, info
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], info
}
