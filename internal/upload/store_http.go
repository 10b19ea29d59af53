package upload

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/raysh454/sitegen/internal/api"
	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/webclient"
)

// HTTPStore talks to an object store that accepts PUT and DELETE on
// {base}/{bucket}/{key}. Authentication is whatever the webclient attaches.
type HTTPStore struct {
	base   string
	bucket string
	wc     webclient.WebClient
	logger logging.Logger
}

// NewHTTPStore returns a store for bucket at baseURL.
func NewHTTPStore(baseURL, bucket string, wc webclient.WebClient, logger logging.Logger) *HTTPStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &HTTPStore{
		base:   strings.TrimRight(baseURL, "/"),
		bucket: strings.Trim(bucket, "/"),
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "upload"}),
	}
}

// URL is the public location of key.
func (s *HTTPStore) URL(key string) string {
	return s.base + "/" + s.bucket + "/" + key
}

func (s *HTTPStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	if err := s.send(ctx, &webclient.Request{Method: http.MethodPut, URL: s.URL(key), Headers: h, Body: body}); err != nil {
		return "", err
	}
	s.logger.Info("object stored", logging.Field{Key: "key", Value: key}, logging.Field{Key: "bytes", Value: len(body)})
	return s.URL(key), nil
}

func (s *HTTPStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := s.send(ctx, &webclient.Request{Method: http.MethodDelete, URL: s.URL(key)})
	if apperr.IsNotFound(err) {
		return nil
	}
	return err
}

func (s *HTTPStore) send(ctx context.Context, req *webclient.Request) error {
	resp, err := s.wc.Do(ctx, req)
	if err != nil {
		return apperr.NewTransport(fmt.Sprintf("storage %s failed", strings.ToLower(req.Method)), err)
	}
	if resp.OK() {
		return nil
	}
	msg := api.ErrorText(resp.Body, resp.Headers.Get("Content-Type"))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return apperr.NewNotFound(msg, nil)
	}
	return apperr.NewBackend(resp.StatusCode, msg)
}
