package handler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"graceful-hc-proxy/internal/model"
)

// Proxier runs the grace pipeline for one request.
type Proxier interface {
	Handle(ctx context.Context, in *model.InboundRequest) *model.FinalResponse
}

// framingHeaders are recomputed for the body we actually write.
var framingHeaders = []string{
	"Connection",
	"Content-Length",
	"Keep-Alive",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyHandler forwards requests on any path to the upstream.
type ProxyHandler struct {
	service Proxier
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc Proxier, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request and writes the decided response.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	in := &model.InboundRequest{
		Method:   req.Method,
		Path:     req.URL.Path,
		RawPath:  req.URL.RawPath,
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
	}

	resp := h.service.Handle(req.Context(), in)
	return h.write(c, resp)
}

func (h *ProxyHandler) write(c echo.Context, resp *model.FinalResponse) error {
	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	for _, k := range framingHeaders {
		header.Del(k)
	}

	// net/http only knows its own reason phrases; anything else goes out on
	// the raw connection so the status line reads e.g. "520 Unknown Error".
	if http.StatusText(resp.StatusCode) != resp.Reason && c.Request().ProtoMajor == 1 {
		err := h.writeRaw(c, resp, header)
		if err == nil {
			return nil
		}
		if !errors.Is(err, http.ErrNotSupported) {
			h.logger.Error("writing raw response", "err", err, "path", c.Request().URL.Path)
			return nil
		}
	}

	dst := c.Response().Header()
	for k, vals := range header {
		dst[k] = vals
	}
	dst.Set(echo.HeaderContentLength, strconv.Itoa(len(resp.Body)))
	c.Response().WriteHeader(resp.StatusCode)
	if _, err := c.Response().Write(resp.Body); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}
	return nil
}

// writeRaw hijacks the connection and writes a complete HTTP/1.1 response.
// The connection is closed afterwards.
func (h *ProxyHandler) writeRaw(c echo.Context, resp *model.FinalResponse, header http.Header) error {
	res := c.Response()

	// Headers set by middleware before the handler ran.
	for k, vals := range res.Header() {
		if _, ok := header[k]; !ok {
			header[k] = vals
		}
	}
	header.Set(echo.HeaderContentLength, strconv.Itoa(len(resp.Body)))
	header.Set("Connection", "close")
	if header.Get("Date") == "" {
		header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}

	conn, rw, err := http.NewResponseController(res.Writer).Hijack()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	res.Status = resp.StatusCode
	res.Committed = true
	res.Size = int64(len(resp.Body))

	return writeResponse(rw.Writer, conn, resp, header)
}

func writeResponse(w *bufio.Writer, conn net.Conn, resp *model.FinalResponse, header http.Header) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %s\r\n", resp.StatusLine()); err != nil {
		return err
	}
	if err := header.Write(w); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(resp.Body); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	return nil
}
