package model

import (
	"net/url"
	"strconv"
	"time"
)

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination describes one page of a history listing.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// History page sizes.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListOptions selects a page of history entries, newest first.
type ListOptions struct {
	Limit   int
	Offset  int
	Kind    HistoryKind // Only entries of this kind when set
	Subject string      // Only entries about this event, state or window when set
}

// DefaultListOptions returns the first page with the default size.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: DefaultListLimit}
}

// ParseListOptions reads limit, offset, kind and subject from a query string.
// Numbers that do not parse keep their defaults; an unknown kind is a
// validation error.
func ParseListOptions(q url.Values) (ListOptions, error) {
	opts := DefaultListOptions()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		opts.Offset = v
	}
	if k := q.Get("kind"); k != "" {
		opts.Kind = HistoryKind(k)
		if !opts.Kind.Valid() {
			return opts, NewValidationError("unknown history kind", FieldError{Field: "kind", Message: k})
		}
	}
	opts.Subject = q.Get("subject")
	opts.Clamp()
	return opts, nil
}

// Clamp keeps Limit within 1..MaxListLimit and Offset non-negative.
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	o.Limit = min(o.Limit, MaxListLimit)
	o.Offset = max(o.Offset, 0)
}

// Page describes the n entries returned for o out of total matches.
func (o ListOptions) Page(total, n int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   o.Limit,
		Offset:  o.Offset,
		HasMore: o.Offset+n < total,
	}
}
