package chatstream

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodeBody wraps body with decoders for each listed Content-Encoding, in
// order, returning a reader that decodes on the fly.
func decodeBody(body io.Reader, headers http.Header) io.Reader {
	if body == nil {
		return nil
	}

	reader := body
	for _, encoding := range parseContentEncoding(headers.Get("Content-Encoding")) {
		switch strings.ToLower(strings.TrimSpace(encoding)) {
		case "gzip", "x-gzip":
			if gr, err := gzip.NewReader(reader); err == nil {
				reader = gr
			}
		case "deflate":
			reader = flate.NewReader(reader)
		case "br":
			reader = brotli.NewReader(reader)
			// identity doesn't need processing
		}
	}
	return reader
}

// parseContentEncoding parses a Content-Encoding header value.
func parseContentEncoding(value string) []string {
	if value == "" {
		return nil
	}
	// "gzip, br" -> ["gzip", "br"]
	var result []string
	for _, p := range strings.Split(value, ",") {
		p = strings.TrimSpace(p)
		if p != "" && p != "identity" {
			result = append(result, p)
		}
	}
	return result
}

// BodyReader provides streaming response body reading with automatic
// Content-Encoding decoding and SSE detection.
type BodyReader struct {
	raw     io.Reader
	decoded io.Reader
	isSSE   bool
	headers http.Header
}

// NewBodyReader creates a BodyReader over body with automatic decoding.
func NewBodyReader(body io.Reader, headers http.Header) *BodyReader {
	if body == nil {
		return nil
	}

	return &BodyReader{
		raw:     body,
		decoded: decodeBody(body, headers),
		isSSE:   strings.Contains(headers.Get("Content-Type"), "text/event-stream"),
		headers: headers,
	}
}

// Read implements io.Reader for streaming reads of the decoded body.
func (br *BodyReader) Read(p []byte) (int, error) {
	if br.decoded == nil {
		return 0, io.EOF
	}
	return br.decoded.Read(p)
}

// IsSSE returns true if this is an SSE stream.
func (br *BodyReader) IsSSE() bool {
	return br.isSSE
}

// Events returns an event-stream parser for this body (only valid when
// IsSSE is true).
func (br *BodyReader) Events(opts ...StreamOption) *EventStream {
	return NewEventStream(br.decoded, opts...)
}

// ContentType returns the Content-Type header value.
func (br *BodyReader) ContentType() string {
	return br.headers.Get("Content-Type")
}

// ReadAll reads the entire decoded body (non-streaming wrapper).
func (br *BodyReader) ReadAll() ([]byte, error) {
	return io.ReadAll(br.decoded)
}

// ReadAllWithLimit reads the decoded body with a size limit.
func (br *BodyReader) ReadAllWithLimit(limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(br.decoded, limit))
}

// Close closes any underlying readers if they implement io.Closer.
func (br *BodyReader) Close() error {
	if closer, ok := br.decoded.(io.Closer); ok {
		return closer.Close()
	}
	if closer, ok := br.raw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
