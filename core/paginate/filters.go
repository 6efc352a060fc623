package paginate

import (
	"net/url"
	"strconv"
	"time"
)

// Filters accumulates query parameters for a list call.
type Filters struct {
	values url.Values
}

// NewFilters creates an empty filter set.
func NewFilters() *Filters {
	return &Filters{values: url.Values{}}
}

// Set sets a scalar parameter, replacing previous values. Empty values are ignored.
func (f *Filters) Set(key, value string) *Filters {
	if value == "" {
		return f
	}
	f.values.Set(key, value)
	return f
}

// SetTime sets a timestamp parameter in ISO-8601. Zero times are ignored.
func (f *Filters) SetTime(key string, t time.Time) *Filters {
	if t.IsZero() {
		return f
	}
	f.values.Set(key, t.UTC().Format(time.RFC3339))
	return f
}

// AddArray appends one repeated parameter per value.
func (f *Filters) AddArray(key string, values ...string) *Filters {
	for _, v := range values {
		if v == "" {
			continue
		}
		f.values.Add(key, v)
	}
	return f
}

// AddInts appends one repeated parameter per integer.
func (f *Filters) AddInts(key string, values ...int) *Filters {
	for _, v := range values {
		f.values.Add(key, strconv.Itoa(v))
	}
	return f
}

// Values returns a copy of the accumulated parameters.
func (f *Filters) Values() url.Values {
	out := make(url.Values, len(f.values))
	for k, v := range f.values {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// WithPage returns the parameters plus limit/offset for one page.
func (f *Filters) WithPage(limit, offset int) url.Values {
	v := f.Values()
	v.Set("limit", strconv.Itoa(limit))
	v.Set("offset", strconv.Itoa(offset))
	return v
}

// Encode returns the query string in repeated-parameter form.
func (f *Filters) Encode() string {
	return f.values.Encode()
}
