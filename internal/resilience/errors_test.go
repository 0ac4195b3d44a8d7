package resilience

import (
	"context"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeoutErr satisfies net.Error the way a dial timeout does.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp 192.0.2.17:21: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{
			"marked transient",
			NewTransientError(eris.New("ocr: mistral API returned 429"), 429),
			true,
		},
		{
			"marked transient deep in chain",
			eris.Wrap(NewTransientError(eris.New("overloaded"), 529), "pipeline: financial stage"),
			true,
		},
		{
			"stage deadline",
			fmt.Errorf("pipeline: hr stage: %w", context.DeadlineExceeded),
			true,
		},
		{"network timeout", timeoutErr{}, true},
		{
			"connection reset errno",
			fmt.Errorf("docsource: ftp read: %w", syscall.ECONNRESET),
			true,
		},
		{
			"reset mentioned in text only",
			eris.New("read tcp 10.0.4.11:52110->203.0.113.9:21: connection reset by peer"),
			true,
		},
		{"tls handshake", eris.New("Post \"https://api.mistral.ai/v1/ocr\": net/http: TLS handshake timeout"), true},
		{"caller cancelled", context.Canceled, false},
		{"validation failure", eris.New("finance: revenue outside configured bounds"), false},
		{"tool failure", eris.New("ocr: pdftotext on fy2024.pdf: exit status 1"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	cause := eris.New("notion: query database: 503")
	te := NewTransientError(cause, 503)

	assert.Equal(t, cause.Error(), te.Error())
	assert.Equal(t, 503, te.StatusCode)
	require.ErrorIs(t, te, cause)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
