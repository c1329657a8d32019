package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/testutils"
	"github.com/srg/ledctl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_ServesConfiguredDevices(t *testing.T) {
	// GOAL: Verify serve exposes the configured registry over HTTP until cancelled
	//
	// TEST SCENARIO: esp-only config on an ephemeral port → GET /api/devices lists it → cancel → serve returns nil

	cfg, err := config.Parse(strings.NewReader(`
listen: 127.0.0.1:0
devices:
  - address: ` + espAddr + `
    vendor: esp
`))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var body string
	var status int
	err = serve(ctx, cfg, true, logger, func(addr net.Addr) {
		defer cancel()

		resp, err := http.Get("http://" + addr.String() + "/api/devices")
		if !assert.NoError(t, err) {
			return
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	testutils.NewJSONAsserter(t).
		WithOptions(testutils.WithIgnoreExtraKeys(true)).
		Assert(body, `{
			"count": 1,
			"devices": [{"address": "`+espAddr+`", "kind": "esp"}]
		}`)
}

func TestServe_InvalidMQTTConfig(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(`
listen: 127.0.0.1:0
mqtt:
  broker: tcp://127.0.0.1:1883
  topic_prefix: "leds/#"
`))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	err = serve(context.Background(), cfg, false, logger, nil)
	assert.ErrorContains(t, err, "invalid mqtt config")
}
