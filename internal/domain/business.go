package domain

import "time"

// Business is a tenant collecting reviews. Only active businesses are
// visible to customers.
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// LookupStatus is the outcome of a business lookup.
type LookupStatus int

const (
	LookupFound LookupStatus = iota
	LookupNotFound
	LookupUnavailable
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "found"
	case LookupNotFound:
		return "not_found"
	case LookupUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// BusinessLookup keeps "no such business" and "backend failed" apart so
// callers decide whether to collapse them.
type BusinessLookup struct {
	Status   LookupStatus
	Business *Business
	Err      error
}

// Found reports whether the lookup resolved an active business.
func (l BusinessLookup) Found() bool {
	return l.Status == LookupFound && l.Business != nil
}

// FindBusiness returns the business with id from list, or nil.
func FindBusiness(list []Business, id string) *Business {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}
