package httpx

import (
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

const defaultExternalHTTPTimeout = 90 * time.Second

var (
	timeoutMu       sync.Mutex
	externalTimeout = defaultExternalHTTPTimeout
)

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// ConfigureExternalHTTPClient sets the timeout used by every outbound client.
func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	timeoutMu.Lock()
	externalTimeout = timeout
	timeoutMu.Unlock()
	externalHTTPClient.Timeout = timeout
	return timeout
}

func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

// NewSessionClient returns a client with its own cookie jar, so concurrent
// runs never share a login session.
func NewSessionClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	timeoutMu.Lock()
	timeout := externalTimeout
	timeoutMu.Unlock()
	return &http.Client{
		Timeout: timeout,
		Jar:     jar,
	}
}
