package api

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestErrorText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, body, contentType, want string
	}{
		{"detail string", `{"detail":"Invalid token"}`, "application/json", "Invalid token"},
		{"error string", `{"error":"boom"}`, "application/json", "boom"},
		{"detail beats error", `{"detail":"first","error":"second"}`, "", "first"},
		{"validation list", `{"detail":[{"loc":["body","business_info","company_name"],"msg":"field required"}]}`, "", "company_name: field required"},
		{"error object", `{"error":{"message":"nested"}}`, "", "nested"},
		{"message field", `{"message":"plain message"}`, "", "plain message"},
		{"plain text", "Service Unavailable", "text/plain", "Service Unavailable"},
		{"empty", "   ", "", ""},
		{"html gateway page", `<html><head><title>502 Bad Gateway</title><style>h1{}</style></head><body><center><h1>502 Bad Gateway</h1></center><hr><center>nginx</center></body></html>`, "text/html", "502 Bad Gateway"},
		{"html title and heading", `<html><head><title>Maintenance</title></head><body><h1>Back soon</h1></body></html>`, "text/html", "Maintenance: Back soon"},
		{"latin-1 html page", "<html><body><h1>Caf\xe9 ferm\xe9</h1></body></html>", "text/html; charset=iso-8859-1", "Café fermé"},
		{"json without known fields", `{"foo":1}`, "", `{"foo":1}`},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, c.want, ErrorText([]byte(c.body), c.contentType))
		})
	}
}

func TestErrorText_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()
	body := "a" + strings.Repeat("é", 400)

	got := ErrorText([]byte(body), "text/plain")
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "…"))

	kept := strings.TrimSuffix(got, "…")
	assert.LessOrEqual(t, len(kept), maxErrorTextLen)
	assert.True(t, strings.HasPrefix(body, kept))
	assert.Equal(t, 499, len(kept), "the split é is dropped whole")
}
