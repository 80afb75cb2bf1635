package pagination

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100

	TotalCountHeader = "X-Total-Count"
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=, clamping to [1, MaxLimit] and >= 0.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page, never negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Link is one entry of an RFC 8288 Link header.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

func (l Link) String() string {
	return fmt.Sprintf(`<%s>; rel="%s"`, l.URL, l.Relation)
}

// Links returns next/prev links for basePath. The current page is not
// repeated as "self".
func (p Params) Links(basePath string, total int) []Link {
	var links []Link
	if p.HasNext(total) {
		links = append(links, Link{
			Relation: "next",
			URL:      fmt.Sprintf("%s?offset=%d&limit=%d", basePath, p.NextOffset(), p.Limit),
		})
	}
	if p.HasPrevious() {
		links = append(links, Link{
			Relation: "prev",
			URL:      fmt.Sprintf("%s?offset=%d&limit=%d", basePath, p.PreviousOffset(), p.Limit),
		})
	}
	return links
}

// SetHeaders writes X-Total-Count and, when there are neighbouring pages, a
// Link header. List bodies stay plain JSON arrays.
func (p Params) SetHeaders(c echo.Context, total int) {
	h := c.Response().Header()
	h.Set(TotalCountHeader, strconv.Itoa(total))

	links := p.Links(c.Request().URL.Path, total)
	if len(links) == 0 {
		return
	}
	parts := make([]string, len(links))
	for i, l := range links {
		parts[i] = l.String()
	}
	h.Set("Link", strings.Join(parts, ", "))
}
