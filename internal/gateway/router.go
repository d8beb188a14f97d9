package gateway

import (
	"log"
	"net/http"
)

// HttpRouter dispatches plain (non-upgrade) HTTP requests registered
// against the Server by method, one handler slot per RFC 7231 method.
// A method with no handler registered answers 501 Not Implemented
// rather than 404, since the path itself may well be valid for other
// methods.
type HttpRouter struct {
	get     http.HandlerFunc
	head    http.HandlerFunc
	post    http.HandlerFunc
	put     http.HandlerFunc
	delete  http.HandlerFunc
	options http.HandlerFunc
	trace   http.HandlerFunc
	connect http.HandlerFunc
	patch   http.HandlerFunc
}

// NewHttpRouter constructs an empty router; every method slot answers
// 501 until set via the On* methods.
func NewHttpRouter() *HttpRouter { return &HttpRouter{} }

func (h *HttpRouter) OnGet(fn http.HandlerFunc)     { h.get = fn }
func (h *HttpRouter) OnHead(fn http.HandlerFunc)    { h.head = fn }
func (h *HttpRouter) OnPost(fn http.HandlerFunc)    { h.post = fn }
func (h *HttpRouter) OnPut(fn http.HandlerFunc)     { h.put = fn }
func (h *HttpRouter) OnDelete(fn http.HandlerFunc)  { h.delete = fn }
func (h *HttpRouter) OnOptions(fn http.HandlerFunc) { h.options = fn }
func (h *HttpRouter) OnTrace(fn http.HandlerFunc)   { h.trace = fn }
func (h *HttpRouter) OnConnect(fn http.HandlerFunc) { h.connect = fn }
func (h *HttpRouter) OnPatch(fn http.HandlerFunc)   { h.patch = fn }

// ServeHTTP dispatches to the registered handler for r.Method. Panics
// from a handler are recovered so the response is always closed (either
// the handler's own write, or a 500 if it panicked before writing
// anything) and the accept loop is never brought down by one bad
// handler.
func (h *HttpRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("gateway: http handler for %s %s panicked: %v", r.Method, r.URL.Path, rec)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()

	handler := h.handlerFor(r.Method)
	if handler == nil {
		http.Error(w, "not implemented", http.StatusNotImplemented)
		return
	}
	handler(w, r)
}

func (h *HttpRouter) handlerFor(method string) http.HandlerFunc {
	switch method {
	case http.MethodGet:
		return h.get
	case http.MethodHead:
		return h.head
	case http.MethodPost:
		return h.post
	case http.MethodPut:
		return h.put
	case http.MethodDelete:
		return h.delete
	case http.MethodOptions:
		return h.options
	case http.MethodTrace:
		return h.trace
	case http.MethodConnect:
		return h.connect
	case http.MethodPatch:
		return h.patch
	default:
		return nil
	}
}
