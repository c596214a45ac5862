package middleware

import (
	"mime"
	"net/http"

	apperrors "agenda/pkg/errors"
	"agenda/pkg/logger"
)

const jsonMediaType = "application/json"

// ContentTypeValidation rejects request bodies that are not JSON. Bodiless requests such as
// confirm or delete pass without a Content-Type header.
func ContentTypeValidation(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != jsonMediaType {
				log.Warn("Invalid Content-Type header",
					"request_id", requestIDFrom(r),
					"content_type", r.Header.Get("Content-Type"),
					"path", r.URL.Path,
					"method", r.Method,
				)
				reject(w, apperrors.New(apperrors.CodeInvalidInput, "Content-Type must be application/json", http.StatusUnsupportedMediaType))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasBody(r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return false
	}
	return r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody
}
