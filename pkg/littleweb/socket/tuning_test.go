package socket

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigForProfileSelectsPreset(t *testing.T) {
	assert.Equal(t, HighThroughputConfig(), ConfigForProfile(ProfileHighThroughput))
	assert.Equal(t, LowLatencyConfig(), ConfigForProfile(ProfileLowLatency))
	assert.Equal(t, DefaultConfig(), ConfigForProfile(ProfileDefault))
	assert.Equal(t, DefaultConfig(), ConfigForProfile(Profile("not-a-real-profile")))
}

func TestHighThroughputConfigFavorsLargerBuffers(t *testing.T) {
	hi := HighThroughputConfig()
	low := LowLatencyConfig()
	assert.Greater(t, hi.RecvBuffer, low.RecvBuffer)
	assert.Greater(t, hi.SendBuffer, low.SendBuffer)
	assert.False(t, hi.QuickAck, "throughput profile should tolerate delayed ACKs")
	assert.True(t, low.QuickAck, "latency profile should request immediate ACKs")
}

func TestApplyIsANoOpForNonTCPConnections(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	require.NoError(t, Apply(server, DefaultConfig()))
	require.NoError(t, Apply(server, nil))
}
