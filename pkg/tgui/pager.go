package tgui

import "fmt"

// Page is one window over a larger list.
type Page[T any] struct {
	Items   []T
	Index   int // 0-based page number, clamped into range
	Pages   int
	Total   int
	From    int // 1-based, inclusive; 0 when the list is empty
	To      int
	HasPrev bool
	HasNext bool
}

// Paginate slices items into the requested page. size <= 0 falls back to 10;
// out-of-range pages clamp to the nearest valid one.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}

	start := page * size
	end := start + size
	if end > total {
		end = total
	}

	p := Page[T]{
		Items:   items[start:end],
		Index:   page,
		Pages:   pages,
		Total:   total,
		HasPrev: page > 0,
		HasNext: end < total,
	}
	if total > 0 {
		p.From = start + 1
		p.To = end
	}
	return p
}

// Label renders "Page 2/4 • 11-20 of 35" for footers.
func (p Page[T]) Label() string {
	if p.Total == 0 {
		return "Page 1/1"
	}
	return fmt.Sprintf("Page %d/%d • %d-%d of %d", p.Index+1, p.Pages, p.From, p.To, p.Total)
}
