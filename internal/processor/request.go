package processor

import (
	"bytes"
	"strings"

	"github.com/conneroisu/otuserver/internal/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
)

// Request is the part of a request line the server acts on.
type Request struct {
	Method string
	Target string
}

// RequestLineComplete reports whether buf holds at least one full line.
// Headers are not awaited: the first line is all the processor reads.
func RequestLineComplete(buf []byte) bool {
	return bytes.IndexByte(buf, '\n') >= 0
}

// ParseRequest decodes the first line of the buffered bytes and extracts
// method and target. Anything after the first line is ignored, including
// header bytes that may still be arriving mid-character.
func ParseRequest(raw []byte) (Request, error) {
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	raw = bytes.TrimRight(raw, "\r")

	if _, _, err := transform.Bytes(encoding.UTF8Validator, raw); err != nil {
		return Request{}, errors.NewProtocolDecodeError(errors.ErrCodeInvalidEncoding,
			"request line is not valid utf-8", err)
	}
	line := string(raw)

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Request{}, errors.NewProtocolDecodeError(errors.ErrCodeMalformedRequest,
			"request line has no target", nil).WithContext("line", line)
	}

	req := Request{Method: fields[0], Target: fields[1]}
	if req.Method != MethodGet && req.Method != MethodHead {
		return req, errors.NewUnsupportedMethodError(req.Method)
	}

	return req, nil
}
