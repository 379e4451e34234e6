package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		opts        ClientOptions
		wantMax     int
		wantIdleMax int
	}{
		{"unbounded", ClientOptions{}, 0, http.DefaultMaxIdleConnsPerHost},
		{"bounded by workers", ClientOptions{MaxConnsPerHost: 4}, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewHTTPClient(3*time.Second, tt.opts)
			assert.Equal(t, 3*time.Second, c.Timeout)

			tr, ok := c.Transport.(*http.Transport)
			require.True(t, ok)
			assert.Equal(t, tt.wantMax, tr.MaxConnsPerHost)
			assert.Equal(t, tt.wantIdleMax, tr.MaxIdleConnsPerHost)
			assert.NotNil(t, tr.Proxy)
		})
	}
}
