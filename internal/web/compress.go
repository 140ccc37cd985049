package web

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// WithCompression brotli-encodes responses for clients that accept it.
func WithCompression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || !strings.Contains(r.Header.Get("Accept-Encoding"), "br") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "br")
		w.Header().Add("Vary", "Accept-Encoding")
		br := brotli.NewWriter(w)
		defer func(br *brotli.Writer) {
			_ = br.Close()
		}(br)
		cw := &compressedWriter{w: w, cw: br}
		next.ServeHTTP(cw, r)
	})
}

type compressedWriter struct {
	w           http.ResponseWriter
	cw          *brotli.Writer
	wroteHeader bool
}

func (cw *compressedWriter) Header() http.Header { return cw.w.Header() }

func (cw *compressedWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.cw.Write(b)
}

// WriteHeader drops Content-Length; it describes the uncompressed body.
func (cw *compressedWriter) WriteHeader(statusCode int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true
	cw.w.Header().Del("Content-Length")
	cw.w.WriteHeader(statusCode)
}
