package types

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "ipv4", input: "10.0.0.1:8333", want: "10.0.0.1:8333"},
		{name: "ipv6", input: "[2001:db8::1]:8333", want: "[2001:db8::1]:8333"},
		{name: "missing port", input: "10.0.0.1", wantErr: true},
		{name: "hostname", input: "seed.example.com:8333", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEndpoint(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestSameEndpoint(t *testing.T) {
	v4 := netip.MustParseAddrPort("10.0.0.1:8333")
	mapped := netip.MustParseAddrPort("[::ffff:10.0.0.1]:8333")
	otherPort := netip.MustParseAddrPort("10.0.0.1:8334")
	otherAddr := netip.MustParseAddrPort("10.0.0.2:8333")

	assert.True(t, SameEndpoint(v4, v4))
	assert.True(t, SameEndpoint(v4, mapped))
	assert.True(t, SameEndpoint(mapped, v4))
	assert.False(t, SameEndpoint(v4, otherPort))
	assert.False(t, SameEndpoint(v4, otherAddr))
}

func TestEndpointKey(t *testing.T) {
	mapped := netip.MustParseAddrPort("[::ffff:10.0.0.1]:8333")
	assert.Equal(t, "10.0.0.1:8333", EndpointKey(mapped))

	p := &PeerAddress{Endpoint: mapped}
	assert.Equal(t, "10.0.0.1:8333", p.Key())
}

func TestHandshakedAfter(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	p := &PeerAddress{LastHandshake: t0}

	assert.True(t, p.HandshakedAfter(t0.Add(-time.Second)))
	assert.False(t, p.HandshakedAfter(t0))
	assert.False(t, p.HandshakedAfter(t0.Add(time.Second)))
	assert.False(t, (&PeerAddress{}).HandshakedAfter(t0))
}
