package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

func TestParseGroup(t *testing.T) {
	tests := []struct {
		input   string
		ip      string
		port    int
		wantErr bool
	}{
		{input: "239.0.0.115:6473", ip: "239.0.0.115", port: 6473},
		{input: "239.0.0.115", ip: "239.0.0.115", port: 0},
		{input: "224.0.0.1:1", ip: "224.0.0.1", port: 1},
		{input: "", wantErr: true},
		{input: "10.0.0.1:6473", wantErr: true},
		{input: "239.0.0.115:0", wantErr: true},
		{input: "239.0.0.115:70000", wantErr: true},
		{input: "239.0.0.115:abc", wantErr: true},
		{input: "ff02::1", wantErr: true},
		{input: "not-an-ip", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ip, port, err := ParseGroup(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ip, ip.String())
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{"unicast consumer", Options{Role: RoleUnicast, Direction: Consumer, Port: 6000}, ""},
		{"unicast bad port", Options{Role: RoleUnicast, Direction: Consumer, Port: 70000}, "port 70000"},
		{"multicast producer", Options{Role: RoleMulticast, Direction: Producer, Group: "239.1.1.1"}, ""},
		{"multicast bad group", Options{Role: RoleMulticast, Direction: Producer, Group: "1.1.1.1"}, "multicast"},
		{"multicast bad ttl", Options{Role: RoleMulticast, Direction: Producer, Group: "239.1.1.1", TTL: 300}, "ttl"},
		{"pubsub defaults", Options{Role: RolePubSub, Direction: Producer}, ""},
		{"pubsub bad range", Options{Role: RolePubSub, Direction: Producer, PortRange: PortRange{Min: 10, Max: 5}}, "range"},
		{"unknown role", Options{Role: "carrier-pigeon", Direction: Producer}, "carrier-pigeon"},
		{"missing direction", Options{Role: RoleUnicast}, "direction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{Role: RolePubSub, Direction: Consumer}.withDefaults()
	assert.Equal(t, DefaultMulticastTTL, o.TTL)
	assert.Equal(t, PortRange{Min: 64401, Max: 64799}, o.PortRange)
	assert.Equal(t, 100, o.MaxTries)
}
