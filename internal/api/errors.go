package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/webclient"
)

const maxErrorTextLen = 500

// classifyTransportError maps a failed round trip onto the user-facing
// taxonomy: deadline → timeout (408), refused/unreachable → unavailable (503),
// anything else → transport.
func classifyTransportError(ctx context.Context, err error, timeout time.Duration) error {
	if errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
		return apperr.NewTimeout(
			fmt.Sprintf("The request timed out after %s. The backend may still be processing it; check your jobs before retrying.", timeout.Round(time.Second)),
			err)
	}
	if isConnRefused(err) {
		return apperr.NewUnavailable("Cannot connect to the backend server. Please make sure it is running and try again.", err)
	}
	return apperr.NewTransport("Network error while contacting the backend.", err)
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isConnRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// errorFromResponse turns a non-2xx response into an *apperr.Error carrying
// the backend's own text.
func errorFromResponse(resp *webclient.Response) *apperr.Error {
	msg := ErrorText(resp.Body, resp.Headers.Get("Content-Type"))
	if msg == "" {
		msg = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperr.NewNotFound(msg, nil)
	case http.StatusUnauthorized, http.StatusForbidden:
		e := apperr.NewUnauthorized(msg, nil)
		e.Status = resp.StatusCode
		return e
	default:
		return apperr.NewBackend(resp.StatusCode, msg)
	}
}

// ErrorText extracts the message a backend put in an error body: the
// "detail" or "error" field of a JSON object (FastAPI validation lists are
// joined), visible text of an HTML page, or the raw body.
func ErrorText(body []byte, contentType string) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	if body[0] == '{' {
		var payload struct {
			Detail  json.RawMessage `json:"detail"`
			Error   json.RawMessage `json:"error"`
			Message string          `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			if s := rawText(payload.Detail); s != "" {
				return s
			}
			if s := rawText(payload.Error); s != "" {
				return s
			}
			if payload.Message != "" {
				return payload.Message
			}
		}
	}

	if strings.Contains(contentType, "html") || body[0] == '<' {
		if s := htmlText(body, contentType); s != "" {
			return truncate(s)
		}
	}
	return truncate(string(body))
}

// rawText renders a detail/error value that may be a string, an object with
// a message, or a list of validation issues.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var issues []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &issues); err == nil && len(issues) > 0 {
		parts := make([]string, 0, len(issues))
		for _, is := range issues {
			if len(is.Loc) > 0 {
				parts = append(parts, fmt.Sprintf("%v: %s", is.Loc[len(is.Loc)-1], is.Msg))
			} else {
				parts = append(parts, is.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	var obj struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Msg
	}
	return string(raw)
}

// htmlText pulls readable text out of proxy and gateway error pages. Pages
// in a legacy charset are transcoded to UTF-8 first.
func htmlText(body []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		r = bytes.NewReader(body)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()

	title := collapse(doc.Find("title").First().Text())
	heading := collapse(doc.Find("h1").First().Text())
	text := collapse(doc.Find("body").Text())

	switch {
	case heading != "" && title != "" && !strings.Contains(heading, title) && !strings.Contains(title, heading):
		return title + ": " + heading
	case heading != "":
		return heading
	case title != "":
		return title
	default:
		return text
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	if len(s) <= maxErrorTextLen {
		return s
	}
	cut := maxErrorTextLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
