package httpclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// MaxRedirects bounds redirect chains followed by unsubscribe requests
const MaxRedirects = 10

// ErrUnsafeRedirect is returned when a redirect leaves http(s)
var ErrUnsafeRedirect = errors.New("redirect to non-http scheme")

// NewUnsubscribeClient creates the client used for direct unsubscribe
// requests. The engine shares one client, so one cookie jar serves every
// sender; the jar scopes cookies by domain. Many unsubscribe flows set a
// session cookie on the first hop and check it after a redirect.
// Request deadlines come from the caller's context.
func NewUnsubscribeClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       60 * time.Second,
	}

	return &http.Client{
		Jar:           jar,
		Transport:     transport,
		CheckRedirect: checkRedirect,
	}, nil
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", MaxRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("%w: %s", ErrUnsafeRedirect, req.URL.Scheme)
	}
	return nil
}
