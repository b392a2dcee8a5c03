package listing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidQuery marks a search request that cannot be served.
var ErrInvalidQuery = errors.New("invalid story query")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Query selects one page of root stories.
type Query struct {
	Q    string `json:"q" validate:"max=255"`
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Page int    `json:"page"`
}

// Normalize trims the search text and date and defaults the page to 1.
func (q Query) Normalize() Query {
	q.Q = strings.TrimSpace(q.Q)
	q.Date = strings.TrimSpace(q.Date)
	if q.Page < 1 {
		q.Page = 1
	}
	return q
}

// Validate checks the normalized query.
func (q Query) Validate() error {
	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %s", ErrInvalidQuery, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return nil
}

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	Page         int  `json:"page"`
	NumPages     int  `json:"num_pages"`
	PageSize     int  `json:"page_size"`
	TotalCount   int  `json:"total_count"`
	HasPrevious  bool `json:"has_previous"`
	HasNext      bool `json:"has_next"`
	PreviousPage int  `json:"previous_page_number,omitempty"`
	NextPage     int  `json:"next_page_number,omitempty"`
}

// Paginate computes the page window for total items. Pages past the end are
// clamped to the last page and an empty result is page 1 of 1.
func Paginate(total, page, size int) (Pagination, int, int) {
	if size < 1 {
		size = 1
	}
	if page < 1 {
		page = 1
	}
	numPages := (total + size - 1) / size
	if numPages < 1 {
		numPages = 1
	}
	if page > numPages {
		page = numPages
	}

	p := Pagination{
		Page:        page,
		NumPages:    numPages,
		PageSize:    size,
		TotalCount:  total,
		HasPrevious: page > 1,
		HasNext:     page < numPages,
	}
	if p.HasPrevious {
		p.PreviousPage = page - 1
	}
	if p.HasNext {
		p.NextPage = page + 1
	}

	start := (page - 1) * size
	end := min(start+size, total)
	if start > total {
		start = total
	}
	return p, start, end
}
