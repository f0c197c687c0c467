// Package listing pages through in-memory result lists.
package listing

import (
	"errors"
	"fmt"
)

// Default pagination values
const (
	DefaultPage    = 1   // Default to first page
	DefaultPerPage = 20  // Default pagination size
	MaxPerPage     = 100 // Maximum items per page
)

// Page represents a 1-based page number
type Page uint64

// PerPage represents items per page
type PerPage uint64

// Pagination validation errors
var (
	ErrPerPageTooLarge = errors.New("per_page exceeds maximum limit")
)

// ParsePage creates a Page with default handling
func ParsePage(page uint64) Page {
	// Zero means use default page
	if page == 0 {
		return Page(DefaultPage)
	}

	return Page(page)
}

// ParsePerPage creates a PerPage with validation
func ParsePerPage(perPage uint64) (PerPage, error) {
	// Zero means use default per_page
	if perPage == 0 {
		return PerPage(DefaultPerPage), nil
	}

	if perPage > MaxPerPage {
		return 0, fmt.Errorf("%w: must be between 1 and %d", ErrPerPageTooLarge, MaxPerPage)
	}

	return PerPage(perPage), nil
}

// Uint64 returns the underlying uint64 value
func (p Page) Uint64() uint64 {
	return uint64(p)
}

// Uint64 returns the underlying uint64 value
func (pp PerPage) Uint64() uint64 {
	return uint64(pp)
}

// Window is one page of a result list with navigation metadata
type Window[T any] struct {
	Items  []T
	Total  int     // Length of the whole list
	Number Page    // Current page number
	Size   PerPage // Page size
}

// Paginate cuts page number of size out of items. Pages past the end are empty.
func Paginate[T any](items []T, number Page, size PerPage) Window[T] {
	w := Window[T]{Total: len(items), Number: number, Size: size, Items: []T{}}

	if number == 0 || number.Uint64() > w.Pages() {
		return w
	}
	start := (number.Uint64() - 1) * size.Uint64()
	end := min(start+size.Uint64(), uint64(len(items)))
	w.Items = items[start:end]
	return w
}

// Pages returns how many non-empty pages the list has. It never multiplies
// the page number, so huge page numbers cannot wrap.
func (w Window[T]) Pages() uint64 {
	if w.Size == 0 {
		return 0
	}
	total, size := uint64(w.Total), w.Size.Uint64()
	pages := total / size
	if total%size != 0 {
		pages++
	}
	return pages
}

// Helper methods for pagination state
func (w Window[T]) HasNext() bool     { return w.Number.Uint64() < w.Pages() }
func (w Window[T]) HasPrevious() bool { return w.Number > 1 }
