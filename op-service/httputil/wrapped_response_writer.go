package httputil

import "net/http"

// WrappedResponseWriter records the status code and body size written by a handler,
// for access logs and metrics.
type WrappedResponseWriter struct {
	StatusCode  int
	ResponseLen int

	w           http.ResponseWriter
	wroteHeader bool
}

var _ http.Flusher = (*WrappedResponseWriter)(nil)

func NewWrappedResponseWriter(w http.ResponseWriter) *WrappedResponseWriter {
	return &WrappedResponseWriter{
		StatusCode: http.StatusOK,
		w:          w,
	}
}

func (w *WrappedResponseWriter) Header() http.Header {
	return w.w.Header()
}

func (w *WrappedResponseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.w.Write(b)
	w.ResponseLen += n
	return n, err
}

// WriteHeader only forwards the first status code, like net/http does.
func (w *WrappedResponseWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.StatusCode = statusCode
	w.w.WriteHeader(statusCode)
}

func (w *WrappedResponseWriter) Flush() {
	if f, ok := w.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *WrappedResponseWriter) Unwrap() http.ResponseWriter {
	return w.w
}
