// Package util holds small helpers shared by network clients.
package util

import (
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

// NewProxyFunc routes requests through the configured proxies, falling back
// to HTTP_PROXY/HTTPS_PROXY/NO_PROXY from the environment.
func NewProxyFunc(httpProxy, httpsProxy string) (func(*http.Request) (*url.URL, error), error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment, nil
	}

	var httpURL, httpsURL *url.URL
	var err error
	if httpProxy != "" {
		if httpURL, err = url.Parse(httpProxy); err != nil {
			return nil, eris.Wrap(err, "parse http proxy")
		}
	}
	if httpsProxy != "" {
		if httpsURL, err = url.Parse(httpsProxy); err != nil {
			return nil, eris.Wrap(err, "parse https proxy")
		}
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsURL != nil {
			return httpsURL, nil
		}
		if httpURL != nil {
			return httpURL, nil
		}
		return http.ProxyFromEnvironment(req)
	}, nil
}
