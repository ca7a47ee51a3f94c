package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	cases := []struct {
		in         string
		user, host string
		port       uint16
	}{
		{"10.0.0.1", "", "10.0.0.1", 0},
		{"admin@10.0.0.1", "admin", "10.0.0.1", 0},
		{"admin@10.0.0.1:2222", "admin", "10.0.0.1", 2222},
		{"core-1.example.net:22", "", "core-1.example.net", 22},
		{"ops@[2001:db8::1]:830", "ops", "2001:db8::1", 830},
		{"2001:db8::1", "", "2001:db8::1", 0},
		{"a@b@10.0.0.1", "a@b", "10.0.0.1", 0},
		{"10.0.0.1:notaport", "", "10.0.0.1", 0},
	}
	for _, tc := range cases {
		u, h, p := ParseAddr(tc.in)
		assert.Equal(t, tc.user, u, tc.in)
		assert.Equal(t, tc.host, h, tc.in)
		assert.Equal(t, tc.port, p, tc.in)
	}
}

func TestParseTargetsCSV(t *testing.T) {
	in := `address,username,password,port,hostname
10.0.0.1, admin, secret
# 注释行
10.0.0.2,admin,"p,w",2222,edge-2
`
	targets, err := ParseTargetsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "10.0.0.1", targets[0].Address)
	assert.Equal(t, "secret", targets[0].Password)
	assert.Equal(t, uint16(2222), targets[1].Port)
	assert.Equal(t, "p,w", targets[1].Password)
	assert.Equal(t, "edge-2", targets[1].Name())

	_, err = ParseTargetsCSV(strings.NewReader("10.0.0.1,admin\n"))
	assert.Error(t, err)

	_, err = ParseTargetsCSV(strings.NewReader("address,username,password\n"))
	assert.Error(t, err)
}
