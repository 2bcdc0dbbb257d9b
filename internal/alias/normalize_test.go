package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Single Sign-On  ", "single sign-on"},
		{"SSO", "sso"},
		{"Identity\t  Team", "identity team"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
}

func TestValidEndpoint(t *testing.T) {
	tests := []struct {
		term string
		want bool
	}{
		{"single sign-on", true},
		{"sso", true},
		{"the", false},
		{"of the", false},
		{"a", false},
		{"identity team", true},
		{"toolong", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidEndpoint(tt.term), tt.term)
	}
}
