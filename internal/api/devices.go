package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/led"
)

// DeviceList is the body of GET /api/devices
type DeviceList struct {
	Devices []led.Info `json:"devices"`
	Count   int        `json:"count"`
}

// Result is the body of a successful device operation
type Result struct {
	Address device.Address `json:"address"`
	State   string         `json:"state"`
	Message string         `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": s.registry.Len(),
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Describe()
	writeJSON(w, http.StatusOK, DeviceList{Devices: devices, Count: len(devices)})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := d.Connect(r.Context()); err != nil {
		s.logger.WithFields(logrus.Fields{"address": d.Address(), "error": err}).Warn("Connect failed")
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result(d, "Successfully connected"))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := d.Disconnect(r.Context()); err != nil {
		s.logger.WithFields(logrus.Fields{"address": d.Address(), "error": err}).Warn("Disconnect failed")
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result(d, "Successfully disconnected"))
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req device.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid event body: "+err.Error())
		return
	}

	ev := req.Event()
	if err := d.OnEvent(r.Context(), ev); err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": d.Address(),
			"event":   ev.String(),
			"error":   err,
		}).Warn("Event failed")
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result(d, "Event applied: "+ev.String()))
}

// lookup resolves the {addr} URL parameter, writing the error response on failure
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (led.Device, bool) {
	d, err := s.registry.Lookup(chi.URLParam(r, "addr"))
	if err != nil {
		writeDeviceError(w, err)
		return nil, false
	}
	return d, true
}

func result(d led.Device, message string) Result {
	return Result{Address: d.Address(), State: d.State().String(), Message: message}
}
