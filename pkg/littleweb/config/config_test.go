package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/littleweb/pkg/littleweb/server"
	"github.com/yourusername/littleweb/pkg/littleweb/socket"
)

func TestDecodeAppliesFields(t *testing.T) {
	raw := map[string]interface{}{
		"addr":                  ":8080",
		"maxRequestWorkers":     64,
		"queueLimits":           map[string]int{"websocket": 16},
		"initialRequestTimeout": "5s",
		"keepAliveMaxRequests":  100,
		"threadStopTimeout":     "2s",
		"hopPollInterval":       "50ms",
		"tempLocation":          "/tmp/littleweb-uploads",
		"serverName":            "littleweb",
		"sessionCookie":         "sid",
		"sessionTimeout":        "30m",
		"socketProfile":         "high-throughput",
	}

	cfg, sessionTimeout, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, int32(100), cfg.KeepAliveMaxRequests)
	assert.Equal(t, "/tmp/littleweb-uploads", cfg.TempLocation)
	assert.Equal(t, "littleweb", cfg.ServerName)
	assert.Equal(t, "sid", cfg.SessionCookie)
	assert.Equal(t, socket.ProfileHighThroughput, cfg.SocketProfile)
	assert.Equal(t, 64, cfg.Limits.MaxPerQueue[server.QueueRequest])
	assert.Equal(t, 16, cfg.Limits.MaxPerQueue[server.QueueName("websocket")])
	assert.Equal(t, 5*time.Second, cfg.InitialRequestTimeout)
	assert.Equal(t, 30*time.Minute, sessionTimeout)
}

func TestDecodeLeavesZeroValuesForEmptyDocument(t *testing.T) {
	cfg, sessionTimeout, err := Decode(map[string]interface{}{})
	require.NoError(t, err)

	assert.Empty(t, cfg.Addr)
	assert.Nil(t, cfg.Limits.MaxPerQueue)
	assert.Zero(t, sessionTimeout)
}

func TestDecodeRejectsUnparsableDuration(t *testing.T) {
	_, _, err := Decode(map[string]interface{}{
		"initialRequestTimeout": "not-a-duration",
	})
	assert.Error(t, err)
}
