package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/srg/ledctl/internal/connection"
	"github.com/srg/ledctl/internal/device"
	goble "github.com/srg/ledctl/internal/device/go-ble"
	"github.com/srg/ledctl/internal/led"
	"github.com/srg/ledctl/internal/protocol/govee"
	"github.com/srg/ledctl/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	brokenAddr = "A4:C1:38:00:00:BB"
	ghostAddr  = "A4:C1:38:00:00:CC"
	espAddr    = "24:0A:C4:00:00:01"
	otherAddr  = "11:22:33:44:55:66"
)

type ServerSuite struct {
	testutils.MockPeripheralSuite

	registry *led.Registry
	handler  http.Handler
	json     *testutils.JSONAsserter
	broken   *testutils.PeripheralDeviceBuilder
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.MockPeripheralSuite.SetupTest()

	s.broken = testutils.CreateGoveePeripheral(brokenAddr).WithDialFailures(3, errors.New("le-connection-abort-by-local"))
	ghost := testutils.CreateGoveePeripheral(ghostAddr).WithoutAdvertisement()
	s.Adapter = testutils.BuildAdapter(s.Peripheral, s.broken, ghost)

	discovery := connection.NewDiscovery(s.Adapter, 200*time.Millisecond, s.Logger)
	s.registry = led.NewRegistry(s.Logger)
	for _, addr := range []device.Address{s.Peripheral.Address(), brokenAddr, ghostAddr} {
		opts := connection.DefaultOptions(addr, testutils.GoveeServiceUUID, testutils.GoveeCharacteristicUUID)
		opts.KeepAliveInterval = time.Hour
		g, err := led.NewGoveeLed(opts, s.Adapter, discovery, s.Logger)
		s.Require().NoError(err)
		s.Require().NoError(s.registry.Add(g))
	}
	s.Require().NoError(s.registry.Add(led.NewStubLed(espAddr, s.Logger)))
	s.Require().NoError(s.registry.Add(led.NewUnknownLed(otherAddr, s.Logger)))

	srv, err := New(Deps{Registry: s.registry, Logger: s.Logger})
	s.Require().NoError(err)
	s.handler = srv.Handler()
	s.json = testutils.NewJSONAsserter(s.T())
}

func (s *ServerSuite) TearDownTest() {
	s.NoError(s.registry.Close(context.Background()))
	s.MockPeripheralSuite.TearDownTest()
}

func (s *ServerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req = req.WithContext(s.Helper.Context(s.TestTimeout))

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *ServerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", "")

	s.Equal(http.StatusOK, rec.Code)
	s.json.Assert(rec.Body.String(), `{"status":"ok","devices":5}`)
}

func (s *ServerSuite) TestListDevices() {
	rec := s.do(http.MethodGet, "/api/devices", "")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("application/json", rec.Header().Get("Content-Type"))
	s.json.Assert(rec.Body.String(), `{
		"count": 5,
		"devices": [
			{"address": "A4:C1:38:00:11:22", "kind": "govee", "state": "disconnected"},
			{"address": "A4:C1:38:00:00:BB", "kind": "govee", "state": "disconnected"},
			{"address": "A4:C1:38:00:00:CC", "kind": "govee", "state": "disconnected"},
			{"address": "24:0A:C4:00:00:01", "kind": "esp", "state": "disconnected"},
			{"address": "11:22:33:44:55:66", "kind": "other", "state": "disconnected"}
		]
	}`)
}

func (s *ServerSuite) TestConnectSetDisconnect() {
	// GOAL: Verify the full HTTP flow drives the Govee device
	//
	// TEST SCENARIO: connect → 200 resolved → set on + color → frames written → disconnect → 200 disconnected

	addr := s.Peripheral.Address().String()

	rec := s.do(http.MethodPost, "/api/connect/"+strings.ToLower(addr), "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.json.Assert(rec.Body.String(), `{
		"address": "A4:C1:38:00:11:22",
		"state": "characteristic_resolved",
		"message": "Successfully connected"
	}`)

	rec = s.do(http.MethodPost, "/api/set/"+addr, `{"event_type":"on"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/set/"+addr, `{"event_type":"color","color":"#FF8000"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.json.Assert(rec.Body.String(), `{"message": "Event applied: color(#FF8000)"}`)

	color, err := govee.EncodeColor("#FF8000")
	s.Require().NoError(err)
	s.Equal([][]byte{govee.EncodeOn().Bytes(), color.Bytes()}, s.Peripheral.ControlCharacteristic().Commands())

	rec = s.do(http.MethodPost, "/api/disconnect/"+addr, "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.json.Assert(rec.Body.String(), `{"state": "disconnected", "message": "Successfully disconnected"}`)
}

func (s *ServerSuite) TestOtherEventIsAccepted() {
	rec := s.do(http.MethodPost, "/api/set/"+otherAddr, `{"event_type":"strobe","other_ev":"fast"}`)

	s.Equal(http.StatusOK, rec.Code)
	s.json.Assert(rec.Body.String(), `{"address":"11:22:33:44:55:66","message":"Event applied: other(fast)"}`)
}

func (s *ServerSuite) TestEspStub() {
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/connect/"+espAddr, "").Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/set/"+espAddr, `{"event_type":"off"}`).Code)

	d, err := s.registry.Lookup(espAddr)
	s.Require().NoError(err)
	s.Equal(device.StateCharacteristicResolved, d.State())
}

func (s *ServerSuite) TestErrorMapping() {
	// GOAL: Verify every failure class maps to its HTTP status and error code
	//
	// TEST SCENARIO: one request per failure class → {"status","code","message"} body with the mapped status

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{
			name:   "malformed address",
			method: http.MethodPost,
			path:   "/api/connect/not-a-mac",
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
		{
			name:   "unknown device",
			method: http.MethodPost,
			path:   "/api/set/00:00:00:00:00:01",
			body:   `{"event_type":"on"}`,
			status: http.StatusNotFound,
			code:   ErrCodeNotFound,
		},
		{
			name:   "invalid body",
			method: http.MethodPost,
			path:   "/api/set/" + espAddr,
			body:   `{"event_type":`,
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
		{
			name:   "malformed color",
			method: http.MethodPost,
			path:   "/api/set/" + testutils.DefaultPeripheralAddress,
			body:   `{"event_type":"color","color":"#GG0000"}`,
			status: http.StatusBadRequest,
			code:   ErrCodeBadRequest,
		},
		{
			name:   "not connected",
			method: http.MethodPost,
			path:   "/api/set/" + testutils.DefaultPeripheralAddress,
			body:   `{"event_type":"on"}`,
			status: http.StatusConflict,
			code:   ErrCodeNotConnected,
		},
		{
			name:   "device not advertising",
			method: http.MethodPost,
			path:   "/api/connect/" + ghostAddr,
			status: http.StatusNotFound,
			code:   ErrCodeNotFound,
		},
		{
			name:   "dial retries exhausted",
			method: http.MethodPost,
			path:   "/api/connect/" + brokenAddr,
			status: http.StatusBadGateway,
			code:   ErrCodeConnectionError,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(tt.method, tt.path, tt.body)

			s.Equal(tt.status, rec.Code, rec.Body.String())
			s.json.Assert(rec.Body.String(), testutils.MustJSON(map[string]any{
				"status":  tt.status,
				"code":    tt.code,
				"message": testutils.PresencePlaceholder,
			}))
		})
	}

	s.Equal(3, s.broken.Dials(), "connect MUST stop after the retry bound")
}

func (s *ServerSuite) TestUnknownRoute() {
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/nope", "").Code)
	s.Equal(http.StatusMethodNotAllowed, s.do(http.MethodGet, "/api/set/"+espAddr, "").Code)
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := New(Deps{})
	assert.EqualError(t, err, "device registry is required")
}

func TestServer_StartAndClose(t *testing.T) {
	srv, err := New(Deps{Listen: "127.0.0.1:0", Registry: led.NewRegistry(nil)})
	require.NoError(t, err)
	assert.Nil(t, srv.Addr())

	require.NoError(t, srv.Start(context.Background()))
	require.Error(t, srv.Start(context.Background()), "second Start MUST fail")

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Close())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"malformed", &device.MalformedInputError{Input: "x", Reason: "bad"}, http.StatusBadRequest},
		{"not found", &device.NotFoundError{Resource: "service"}, http.StatusNotFound},
		{"not connected", device.ErrNotConnected, http.StatusConflict},
		{"degraded", errors.Join(device.ErrNotConnected, errors.New("heartbeat failed")), http.StatusConflict},
		{"connection", &device.ConnectionError{Address: "A4:C1:38:00:11:22", Attempts: 3, Err: errors.New("timeout")}, http.StatusBadGateway},
		{"connection lost while dialing", &device.ConnectionError{
			Address:  "A4:C1:38:00:11:22",
			Attempts: 3,
			Err:      goble.NormalizeError(errors.New("hci: device disconnected during connect")),
		}, http.StatusBadGateway},
		{"bluetooth off", device.ErrBluetoothOff, http.StatusServiceUnavailable},
		{"write", &device.WriteError{Characteristic: "2b11", Err: errors.New("att error")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			if tt.status == http.StatusBadGateway {
				assert.Equal(t, ErrCodeConnectionError, code, "exhausted connects MUST map to connection_failed")
			}
		})
	}
}
