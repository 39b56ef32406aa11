package processor

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
)

// reasons holds the reason phrases this server puts on the status line.
var reasons = map[int]string{
	http.StatusOK:                  "OK",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Resource Not Found",
	http.StatusMethodNotAllowed:    "Method Unsupported",
	http.StatusInternalServerError: "Internal Server Error",
}

// Reason returns the reason phrase for status.
func Reason(status int) string {
	if reason, ok := reasons[status]; ok {
		return reason
	}
	return http.StatusText(status)
}

// HeaderField is one response header line.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered set of response headers with unique names.
type Header []HeaderField

// Set replaces the value of name, or appends it if absent. Names compare
// case-insensitively.
func (h *Header) Set(name, value string) {
	for i := range *h {
		if strings.EqualFold((*h)[i].Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, HeaderField{Name: name, Value: value})
}

// Get returns the value of name.
func (h Header) Get(name string) (string, bool) {
	for _, field := range h {
		if strings.EqualFold(field.Name, name) {
			return field.Value, true
		}
	}
	return "", false
}

// Names returns header names in order.
func (h Header) Names() []string {
	names := make([]string, len(h))
	for i, field := range h {
		names[i] = field.Name
	}
	return names
}

// Response is a complete HTTP/1.1 response held in memory.
type Response struct {
	Status int
	Header Header
	Body   []byte
}

// Bytes serializes the status line, headers, blank line and body.
func (r *Response) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(128 + len(r.Body))

	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.Itoa(r.Status))
	buf.WriteByte(' ')
	buf.WriteString(Reason(r.Status))
	buf.WriteString("\r\n")

	for _, field := range r.Header {
		buf.WriteString(field.Name)
		buf.WriteString(": ")
		buf.WriteString(field.Value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(r.Body)

	return buf.Bytes()
}
