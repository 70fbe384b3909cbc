package sign

import (
	"bytes"
	"io"
	"net/http"
)

// readAll reads req.Body fully. http.Request bodies are not seekable, so
// Sign and Verify both need to buffer them once to compute the digest and
// then hand back an equivalent, re-readable body.
func readAll(req *http.Request) ([]byte, error) {
	return io.ReadAll(req.Body)
}

func newBodyReader(body []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(body))
}
