package webclient

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/raysh454/sitegen/internal/logging"
)

// Options carries what a backend constructor may need.
type Options struct {
	Timeout time.Duration

	// TokenSource supplies the bearer session token. Required by "oauth2".
	TokenSource oauth2.TokenSource

	// Transport overrides the base RoundTripper (tests point it at httptest).
	Transport http.RoundTripper
}

// BackendConstructor constructs a WebClient given options and logger.
type BackendConstructor func(opts Options, logger logging.Logger) (WebClient, error)

const (
	BackendNetHTTP = "nethttp"
	BackendOAuth2  = "oauth2"
)

var (
	mu       sync.RWMutex
	registry = map[string]BackendConstructor{}
)

func init() {
	RegisterBackend(BackendNetHTTP, newNetHTTPBackend)
	RegisterBackend(BackendOAuth2, newOAuth2Backend)
}

// RegisterBackend registers a named backend constructor. Name is lower-cased
// internally. Calling RegisterBackend with the same name overwrites the previous
// constructor.
func RegisterBackend(name string, ctor BackendConstructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = ctor
}

// NewWebClient constructs the named backend. Empty picks oauth2 when a token
// source is present and nethttp otherwise.
func NewWebClient(backend string, opts Options, logger logging.Logger) (WebClient, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = BackendNetHTTP
		if opts.TokenSource != nil {
			backend = BackendOAuth2
		}
	}

	mu.RLock()
	ctor, ok := registry[backend]
	mu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("webclient backend %q not registered: available backends=%v", backend, ListBackends())
	}

	wc, err := ctor(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct webclient backend %q: %w", backend, err)
	}
	if wc == nil {
		return nil, errors.New("webclient constructor returned nil")
	}
	return wc, nil
}

// ListBackends returns the sorted list of registered backend names.
func ListBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

func newNetHTTPBackend(opts Options, logger logging.Logger) (WebClient, error) {
	return NewNetHTTPClient(logger, &http.Client{
		Timeout:   timeoutOrDefault(opts.Timeout),
		Transport: opts.Transport,
	}), nil
}

// newOAuth2Backend attaches "Authorization: Bearer <token>" to every request
// via oauth2.Transport, asking the token source each time.
func newOAuth2Backend(opts Options, logger logging.Logger) (WebClient, error) {
	if opts.TokenSource == nil {
		return nil, errors.New("oauth2 backend requires a token source")
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client := &http.Client{
		Timeout: timeoutOrDefault(opts.Timeout),
		Transport: &oauth2.Transport{
			Source: opts.TokenSource,
			Base:   base,
		},
	}
	return NewNetHTTPClient(logger, client), nil
}

// StaticToken wraps a fixed bearer token as a token source.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}
