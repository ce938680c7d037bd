package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		name           string
		imageRef       string
		expectedResult *Reference
		expectedErr    error
	}{
		{
			name:     "official image short name",
			imageRef: "alpine",
			expectedResult: &Reference{
				Registry:   "registry-1.docker.io",
				Repository: "library/alpine",
				Tag:        "latest",
			},
		},
		{
			name:     "official image with tag",
			imageRef: "alpine:3.19",
			expectedResult: &Reference{
				Registry:   "registry-1.docker.io",
				Repository: "library/alpine",
				Tag:        "3.19",
			},
		},
		{
			name:     "default registry with account",
			imageRef: "grafana/grafana:10.2.0",
			expectedResult: &Reference{
				Registry:   "registry-1.docker.io",
				Account:    "grafana",
				Repository: "grafana/grafana",
				Tag:        "10.2.0",
			},
		},
		{
			name:     "explicit docker.io host",
			imageRef: "docker.io/nginx:1.25",
			expectedResult: &Reference{
				Registry:   "registry-1.docker.io",
				Repository: "library/nginx",
				Tag:        "1.25",
			},
		},
		{
			name:     "legacy index.docker.io host",
			imageRef: "index.docker.io/library/busybox",
			expectedResult: &Reference{
				Registry:   "registry-1.docker.io",
				Repository: "library/busybox",
				Tag:        "latest",
			},
		},
		{
			name:     "ghcr with account",
			imageRef: "ghcr.io/myorg/tool:v2",
			expectedResult: &Reference{
				Registry:   "ghcr.io",
				Account:    "myorg",
				Repository: "myorg/tool",
				Tag:        "v2",
			},
		},
		{
			name:     "registry with port",
			imageRef: "localhost:5000/dev/app:test",
			expectedResult: &Reference{
				Registry:   "localhost:5000",
				Account:    "dev",
				Repository: "dev/app",
				Tag:        "test",
			},
		},
		{
			name:     "digest reference",
			imageRef: "ghcr.io/myorg/tool@sha256:03b62250a3cb1abd125271d393fc08bf0cc713391eda6b384bf007af7d7b4aeb",
			expectedResult: &Reference{
				Registry:   "ghcr.io",
				Account:    "myorg",
				Repository: "myorg/tool",
				Digest:     "sha256:03b62250a3cb1abd125271d393fc08bf0cc713391eda6b384bf007af7d7b4aeb",
			},
		},
		{
			name:     "digest overrides tag",
			imageRef: "ghcr.io/myorg/tool:v2@sha256:03b62250a3cb1abd125271d393fc08bf0cc713391eda6b384bf007af7d7b4aeb",
			expectedResult: &Reference{
				Registry:   "ghcr.io",
				Account:    "myorg",
				Repository: "myorg/tool",
				Digest:     "sha256:03b62250a3cb1abd125271d393fc08bf0cc713391eda6b384bf007af7d7b4aeb",
			},
		},
		{
			name:        "empty reference",
			imageRef:    "",
			expectedErr: ErrEmptyReference,
		},
		{
			name:        "uppercase repository",
			imageRef:    "ghcr.io/MyOrg/tool",
			expectedErr: ErrInvalidReferenceFormat,
		},
		{
			name:        "double colon",
			imageRef:    "invalid::image:format",
			expectedErr: ErrInvalidReferenceFormat,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ParseReference(tc.imageRef)
			if tc.expectedErr != nil {
				require.Nil(t, result)
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedResult.Registry, result.Registry)
			assert.Equal(t, tc.expectedResult.Account, result.Account)
			assert.Equal(t, tc.expectedResult.Repository, result.Repository)
			assert.Equal(t, tc.expectedResult.Tag, result.Tag)
			assert.Equal(t, tc.expectedResult.Digest, result.Digest)
		})
	}
}

// Re-parsing the normalized form must yield the same fields.
func TestParseReferenceIdempotent(t *testing.T) {
	refs := []string{
		"alpine",
		"alpine:3.19",
		"grafana/grafana:10.2.0",
		"ghcr.io/myorg/tool:v2",
		"localhost:5000/dev/app:test",
		"ghcr.io/myorg/tool@sha256:03b62250a3cb1abd125271d393fc08bf0cc713391eda6b384bf007af7d7b4aeb",
	}
	for _, raw := range refs {
		t.Run(raw, func(t *testing.T) {
			first, err := ParseReference(raw)
			require.NoError(t, err)
			second, err := ParseReference(first.String())
			require.NoError(t, err)
			assert.Equal(t, first.Registry, second.Registry)
			assert.Equal(t, first.Account, second.Account)
			assert.Equal(t, first.Repository, second.Repository)
			assert.Equal(t, first.Tag, second.Tag)
			assert.Equal(t, first.Digest, second.Digest)
		})
	}
}

func TestReferenceString(t *testing.T) {
	tagged := &Reference{Registry: "ghcr.io", Repository: "myorg/tool", Tag: "v2"}
	assert.Equal(t, "ghcr.io/myorg/tool:v2", tagged.String())
	assert.Equal(t, "v2", tagged.TagOrDigest())

	digested := &Reference{
		Registry:   "ghcr.io",
		Repository: "myorg/tool",
		Digest:     "sha256:abc",
	}
	assert.Equal(t, "ghcr.io/myorg/tool@sha256:abc", digested.String())
	assert.Equal(t, "sha256:abc", digested.TagOrDigest())
}

func TestExpandName(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		image    string
		expected string
	}{
		{"short name", "ghcr.io/myorg", "tool:v2", "ghcr.io/myorg/tool:v2"},
		{"trailing slash prefix", "ghcr.io/myorg/", "tool", "ghcr.io/myorg/tool"},
		{"already qualified", "ghcr.io/myorg", "docker.io/library/alpine", "docker.io/library/alpine"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ExpandName(tc.prefix, tc.image))
		})
	}
}

func TestParseAccountPrefix(t *testing.T) {
	tests := []struct {
		prefix          string
		expectedHost    string
		expectedAccount string
	}{
		{"ghcr.io/myorg", "ghcr.io", "myorg"},
		{"ghcr.io/myorg/", "ghcr.io", "myorg"},
		{"myuser", "registry-1.docker.io", "myuser"},
		{"docker.io/myuser", "registry-1.docker.io", "myuser"},
		{"localhost:5000/dev", "localhost:5000", "dev"},
	}
	for _, tc := range tests {
		t.Run(tc.prefix, func(t *testing.T) {
			host, account := ParseAccountPrefix(tc.prefix)
			assert.Equal(t, tc.expectedHost, host)
			assert.Equal(t, tc.expectedAccount, account)
		})
	}
}
