// Package processor maps raw request bytes to a complete response.
//
// It is synchronous and knows nothing about sockets: the caller hands over
// the bytes buffered so far and gets back a Response to serialize. File
// content is read inline with blocking calls.
package processor

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/conneroisu/otuserver/internal/errors"
	"github.com/conneroisu/otuserver/internal/logging"
	"github.com/conneroisu/otuserver/internal/templates"
)

// DateLayout formats the Date header: day, month name, year, hour:minute.
const DateLayout = "02 Jan 2006 15:04"

const (
	DefaultIndex      = "index.html"
	DefaultServerName = "OTUServer"
)

// TemplateSource loads error bodies by status.
type TemplateSource interface {
	Load(status int) (templates.Template, error)
}

// Options configures a Processor.
type Options struct {
	Root       string
	Index      string
	ServerName string
	Templates  TemplateSource
	Now        func() time.Time
	Logger     logging.Logger
}

// Processor builds responses for requests against one root directory.
type Processor struct {
	root       string
	index      string
	serverName string
	templates  TemplateSource
	now        func() time.Time
	logger     logging.Logger
}

// New creates a processor. Root must be an existing directory.
func New(opts Options) (*Processor, error) {
	if opts.Root == "" {
		return nil, errors.NewConfigError("root directory is required", nil)
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, errors.NewConfigError("resolving root directory", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.NewConfigError("root directory is not accessible", err).WithContext("root", root)
	}
	if !info.IsDir() {
		return nil, errors.NewConfigError("root is not a directory", nil).WithContext("root", root)
	}

	p := &Processor{
		root:       root,
		index:      opts.Index,
		serverName: opts.ServerName,
		templates:  opts.Templates,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if p.index == "" {
		p.index = DefaultIndex
	}
	if p.serverName == "" {
		p.serverName = DefaultServerName
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	p.logger = p.logger.WithComponent("processor")
	if p.templates == nil {
		store, err := templates.New(templates.Options{Logger: p.logger})
		if err != nil {
			return nil, err
		}
		p.templates = store
	}

	return p, nil
}

// Root returns the absolute root directory.
func (p *Processor) Root() string {
	return p.root
}

// Process returns the response for raw. It never fails: every fault becomes
// an error response.
func (p *Processor) Process(raw []byte) *Response {
	resp, _ := p.Handle(raw)
	return resp
}

// Handle is Process that also reports the fault behind a non-200 response,
// for logging by the caller. The response is never nil.
func (p *Processor) Handle(raw []byte) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError(errors.ErrCodeInternalError,
				"panic while processing request", fmt.Errorf("%v", r))
			resp = p.errorResponse(http.StatusInternalServerError)
		}
	}()

	req, err := ParseRequest(raw)
	if err != nil {
		return p.errorResponse(errors.StatusCode(err)), err
	}

	path, info, err := p.Resolve(req.Target)
	if err != nil {
		return p.errorResponse(errors.StatusCode(err)), err
	}

	resp, err = p.fileResponse(req.Method, path, info)
	if err != nil {
		return p.errorResponse(http.StatusInternalServerError), err
	}

	return resp, nil
}

// fileResponse builds the 200 response. HEAD keeps the file's real
// Content-Length but carries no body.
func (p *Processor) fileResponse(method, path string, info os.FileInfo) (*Response, error) {
	size := info.Size()
	var body []byte
	if method == MethodGet {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewInternalError(errors.ErrCodeInternalError, "reading file", err).
				WithContext("path", path)
		}
		body = data
		size = int64(len(data))
	}

	resp := &Response{Status: http.StatusOK, Body: body}
	p.commonHeaders(&resp.Header)
	resp.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	if contentType := mime.TypeByExtension(filepath.Ext(path)); contentType != "" {
		resp.Header.Set("Content-Type", contentType)
	}
	resp.Header.Set("Connection", "close")

	return resp, nil
}

// errorResponse renders the template for status. If the template cannot be
// loaded the response goes out with an empty body.
func (p *Processor) errorResponse(status int) *Response {
	resp := &Response{Status: status}
	p.commonHeaders(&resp.Header)

	tmpl, err := p.templates.Load(status)
	if err != nil {
		p.logger.Error(context.Background(), err, "Error template unavailable", "status", status)
		resp.Header.Set("Content-Length", "0")
		resp.Header.Set("Connection", "close")
		return resp
	}

	resp.Body = tmpl.Body
	resp.Header.Set("Content-Length", strconv.Itoa(tmpl.Size()))
	if tmpl.ContentType != "" {
		resp.Header.Set("Content-Type", tmpl.ContentType)
	}
	resp.Header.Set("Connection", "close")

	return resp
}

func (p *Processor) commonHeaders(h *Header) {
	h.Set("Server", p.serverName)
	h.Set("Date", p.now().Format(DateLayout))
}
