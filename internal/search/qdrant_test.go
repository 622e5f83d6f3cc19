package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQdrantURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{
			name:     "https cloud URL with REST port",
			url:      "https://xyz.cloud.qdrant.io:6333",
			wantHost: "xyz.cloud.qdrant.io",
			wantPort: 6334,
			wantTLS:  true,
		},
		{
			name:     "http localhost with REST port",
			url:      "http://localhost:6333",
			wantHost: "localhost",
			wantPort: 6334,
			wantTLS:  false,
		},
		{
			name:     "explicit gRPC port kept",
			url:      "http://localhost:6334",
			wantHost: "localhost",
			wantPort: 6334,
			wantTLS:  false,
		},
		{
			name:     "custom port kept",
			url:      "https://qdrant.internal:7001",
			wantHost: "qdrant.internal",
			wantPort: 7001,
			wantTLS:  true,
		},
		{
			name:     "no port defaults to gRPC",
			url:      "https://qdrant.internal",
			wantHost: "qdrant.internal",
			wantPort: 6334,
			wantTLS:  true,
		},
		{
			name:    "empty URL",
			url:     "",
			wantErr: true,
		},
		{
			name:    "garbage",
			url:     "not a url",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, useTLS, err := parseQdrantURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
			assert.Equal(t, tt.wantTLS, useTLS)
		})
	}
}

func TestPointID_Deterministic(t *testing.T) {
	a := pointID("chunk-1")
	b := pointID("chunk-1")
	c := pointID("chunk-2")

	assert.Equal(t, a, b, "same chunk must map to the same point")
	assert.NotEqual(t, a, c, "different chunks must map to different points")
}
