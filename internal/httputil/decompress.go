package httputil

import (
	"compress/gzip"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
)

// DecompressPayload adds a reader of the right type in case you need to decompress the body
func DecompressPayload(next http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		switch r.Header.Get("Content-Encoding") {
		case "br":
			r.Body = io.NopCloser(brotli.NewReader(r.Body))
		case "gzip":
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, "malformed gzip body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(zr)
		}

		next.ServeHTTP(w, r)
	})
}
