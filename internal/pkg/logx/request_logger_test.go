package logx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"203.0.113.42:52110", "203.0.113.0"},
		{"203.0.113.42", "203.0.113.0"},
		{"[2001:db8:85a3:1234:5678:8a2e:370:7334]:443", "2001:db8:85a3:1234::"},
		{"127.0.0.1:8080", "127.0.0.1"},
		{"not-an-address", "unknown_ip"},
		{"", "unknown_ip"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, anonymizeIP(tc.in), "input %q", tc.in)
	}
}
