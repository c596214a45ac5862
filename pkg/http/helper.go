package http

import (
	"net/http"
	"strconv"
	"time"

	apperrors "agenda/pkg/errors"
)

// QueryTime parses an RFC3339 query parameter. A missing parameter yields nil.
func QueryTime(r *http.Request, key string) (*time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, apperrors.InvalidInput("invalid " + key + " format, must be RFC3339")
	}
	return &t, nil
}

// QueryDate parses a YYYY-MM-DD query parameter in loc.
func QueryDate(r *http.Request, key string, loc *time.Location) (time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return time.Time{}, apperrors.InvalidInput(key + " query parameter is required")
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput("invalid " + key + " format, must be YYYY-MM-DD")
	}
	return t, nil
}

func QueryInt(r *http.Request, key string) (*int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, apperrors.InvalidInput("invalid " + key + " parameter: " + s)
	}
	return &v, nil
}

func QueryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}
