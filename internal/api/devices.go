package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	bridge "github.com/nerrad567/indi-bridge/internal/bridges/indi"
	"github.com/nerrad567/indi-bridge/internal/device"
	"github.com/nerrad567/indi-bridge/internal/indi"
)

// setPropertyRequest is the body of PUT .../properties/{property}.
type setPropertyRequest struct {
	Kind     indi.Kind      `json:"kind,omitempty"`
	Elements map[string]any `json:"elements"`
}

// handleListDevices returns every known device. BLOB payloads are
// omitted; fetch the property to read one.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.ListDevices()
	for i := range devices {
		stripBLOBs(&devices[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by name.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "device")

	dev, err := s.registry.GetDevice(name)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	stripBLOBs(dev)
	writeJSON(w, http.StatusOK, dev)
}

// handleGetProperty returns one property including any BLOB payload.
func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.GetProperty(chi.URLParam(r, "device"), chi.URLParam(r, "property"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSetProperty sends a new*Vector request. A 202 means the request
// reached the INDI server; the result arrives as a later state change.
func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	if s.setter == nil {
		writeUnavailable(w, "property writes are not available")
		return
	}

	var req setPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	deviceName := chi.URLParam(r, "device")
	property := chi.URLParam(r, "property")

	err := s.setter.SetProperty(r.Context(), deviceName, property, req.Kind, req.Elements)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "accepted",
			"device":   deviceName,
			"property": property,
		})
	case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, device.ErrPropertyNotFound):
		writeLookupError(w, err)
	case bridge.IsCommandError(err):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, bridge.ErrNotConnected):
		writeUnavailable(w, err.Error())
	default:
		s.logger.Warn("property write failed", "device", deviceName, "property", property, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "failed to send request to INDI server")
	}
}

func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrPropertyNotFound):
		writeNotFound(w, "property not found")
	default:
		writeInternalError(w, "lookup failed")
	}
}

// stripBLOBs drops BLOB payloads from a device copy.
func stripBLOBs(d *device.Device) {
	for _, p := range d.Properties {
		if p.Kind != indi.KindBLOB {
			continue
		}
		for i := range p.Elements {
			p.Elements[i].BLOB = nil
		}
	}
}
