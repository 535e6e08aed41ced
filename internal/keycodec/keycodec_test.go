package keycodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"alice", "alice"},
		{"a/b", "a%2fb"},
		{"100%", "100%25"},
		{"nul\x00byte", "nul%00byte"},
		{".hidden", "%2ehidden"},
		{".", "%2e"},
		{"..", "%2e."},
		{"a.b.", "a.b."},
		{"CVS", "%43VS"},
		{"CVSROOT", "CVSROOT"},
		{"cvs", "cvs"},
		{"héllo wörld", "héllo wörld"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := Normalize(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.key, Denormalize(got))
		})
	}
}

func TestNormalizeEmpty(t *testing.T) {
	_, err := Normalize("")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDenormalizeMalformed(t *testing.T) {
	assert.Equal(t, "50%", Denormalize("50%"))
	assert.Equal(t, "%zz", Denormalize("%zz"))
	assert.Equal(t, "%2", Denormalize("%2"))
	assert.Equal(t, "a/b", Denormalize("a%2Fb"))
}

func FuzzRoundTrip(f *testing.F) {
	for _, seed := range []string{"a", "a/b", "%", ".x", "CVS", "%2e", "\x00"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, key string) {
		if key == "" {
			return
		}
		name, err := Normalize(key)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", key, err)
		}
		if name == "." || name == ".." || name[0] == '.' {
			t.Fatalf("Normalize(%q) = %q is a dot entry", key, name)
		}
		for i := 0; i < len(name); i++ {
			if name[i] == '/' || name[i] == 0 {
				t.Fatalf("Normalize(%q) = %q contains a path separator or NUL", key, name)
			}
		}
		if got := Denormalize(name); got != key {
			t.Fatalf("Denormalize(Normalize(%q)) = %q", key, got)
		}
	})
}
