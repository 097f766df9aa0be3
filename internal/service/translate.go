package service

import (
	"net/http"
	"net/url"

	"graceful-hc-proxy/internal/model"
)

// Translate builds the outbound call for an inbound request. The upstream
// base contributes only scheme and authority; path and query come from the
// inbound request. Every header except Host is forwarded.
func Translate(in *model.InboundRequest, base *url.URL, timeout model.Timeout) *model.OutboundCallSpec {
	u := url.URL{
		Scheme:   base.Scheme,
		User:     base.User,
		Host:     base.Host,
		Path:     in.Path,
		RawPath:  in.RawPath,
		RawQuery: in.RawQuery,
	}

	header := make(http.Header, len(in.Header))
	for k, vals := range in.Header {
		if http.CanonicalHeaderKey(k) == "Host" {
			continue
		}
		header[k] = append([]string(nil), vals...)
	}

	return &model.OutboundCallSpec{
		Method:  in.Method,
		URL:     u.String(),
		Header:  header,
		Timeout: timeout,
	}
}
