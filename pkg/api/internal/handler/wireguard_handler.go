package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wg-gateway/pkg/command"
	"github.com/UnAfraid/wg-gateway/pkg/lock"
	"github.com/UnAfraid/wg-gateway/pkg/provision"
	"github.com/UnAfraid/wg-gateway/pkg/status"
	"github.com/UnAfraid/wg-gateway/pkg/wireguard"
)

const unsupportedModeMessage = "Only mode=dry-run is supported for now."

type createPeerRequest struct {
	Iface        string   `json:"iface"`
	Name         string   `json:"name"`
	AllowedIPs   []string `json:"allowedIps"`
	DNS          string   `json:"dns"`
	EndpointHost string   `json:"endpointHost"`
	EndpointPort *int     `json:"endpointPort"`
}

type createPeerResponse struct {
	Iface       string `json:"iface"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	PublicKey   string `json:"publicKey"`
	Config      string `json:"config"`
	QrPngBase64 string `json:"qrPngBase64"`
	QrDataUrl   string `json:"qrDataUrl"`
}

type removePeerRequest struct {
	Interface string `json:"interface"`
	Iface     string `json:"iface"`
	PublicKey string `json:"publicKey"`
}

type WireGuardHandler struct {
	provisionService provision.Service
	statusService    status.Service
}

func NewWireGuardHandler(provisionService provision.Service, statusService status.Service) *WireGuardHandler {
	return &WireGuardHandler{
		provisionService: provisionService,
		statusService:    statusService,
	}
}

func (h *WireGuardHandler) State(w http.ResponseWriter, r *http.Request) {
	iface := h.statusService.Iface()
	state, err := h.statusService.State(r.Context())
	if err != nil {
		h.writeError(w, "wireguard state read failed", iface, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *WireGuardHandler) CreatePeer(w http.ResponseWriter, r *http.Request) {
	request, err := decodeBody[createPeerRequest](w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	iface := strings.TrimSpace(request.Iface)
	if iface == "" {
		iface = h.statusService.Iface()
	}

	result, err := h.provisionService.CreatePeer(r.Context(), &provision.CreateOptions{
		Iface:        iface,
		Name:         request.Name,
		AllowedIPs:   request.AllowedIPs,
		DNS:          request.DNS,
		EndpointHost: request.EndpointHost,
		EndpointPort: request.EndpointPort,
	})
	if err != nil {
		h.writeError(w, "wireguard peer create failed", iface, err)
		return
	}

	auditLog(r, "peer created").
		WithField("iface", result.Iface).
		WithField("address", result.Address).
		WithField("publicKey", result.PublicKey).
		Info("admin action")

	writeJSON(w, http.StatusOK, &createPeerResponse{
		Iface:       result.Iface,
		Name:        result.Name,
		Address:     result.Address,
		PublicKey:   result.PublicKey,
		Config:      result.Config,
		QrPngBase64: result.QRCodeBase64(),
		QrDataUrl:   result.QRCodeDataURL(),
	})
}

func (h *WireGuardHandler) RemovePeer(w http.ResponseWriter, r *http.Request) {
	request, err := decodeBody[removePeerRequest](w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	iface := strings.TrimSpace(request.Interface)
	if iface == "" {
		iface = strings.TrimSpace(request.Iface)
	}
	if iface == "" {
		iface = h.statusService.Iface()
	}

	if err := h.provisionService.RemovePeer(r.Context(), iface, request.PublicKey); err != nil {
		h.writeError(w, "wireguard peer remove failed", iface, err)
		return
	}
	auditLog(r, "peer removed").
		WithField("iface", iface).
		WithField("publicKey", request.PublicKey).
		Info("admin action")
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *WireGuardHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	iface := h.statusService.Iface()
	report, err := h.statusService.Reconcile(r.Context(), r.URL.Query().Get("mode"))
	if errors.Is(err, status.ErrUnsupportedMode) {
		writeMessage(w, http.StatusBadRequest, unsupportedModeMessage, "")
		return
	}
	if err != nil {
		h.writeError(w, "wireguard reconcile failed", iface, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeError maps provisioning and state errors onto response codes. Validation
// errors omit the interface, internal errors never echo tool output.
func (h *WireGuardHandler) writeError(w http.ResponseWriter, logMessage string, iface string, err error) {
	entry := logrus.
		WithError(err).
		WithField("iface", iface)

	switch {
	case errors.Is(err, provision.ErrValidation):
		entry.Warn(logMessage)
		writeMessage(w, http.StatusBadRequest, trimKind(err, provision.ErrValidation), "")
	case errors.Is(err, wireguard.ErrInterfaceNotFound):
		entry.Warn(logMessage)
		writeMessage(w, http.StatusNotFound, err.Error(), iface)
	case errors.Is(err, provision.ErrConflict):
		entry.Warn(logMessage)
		writeMessage(w, http.StatusConflict, trimKind(err, provision.ErrConflict), iface)
	case errors.Is(err, lock.ErrBusy):
		entry.Warn(logMessage)
		writeMessage(w, http.StatusServiceUnavailable, err.Error(), iface)
	default:
		entry.Error(logMessage)
		writeMessage(w, http.StatusInternalServerError, internalMessage(err), iface)
	}
}

func internalMessage(err error) string {
	var toolError *command.ToolError
	switch {
	case errors.As(err, &toolError):
		return toolError.Error()
	case errors.Is(err, command.ErrExecutableNotFound):
		return command.ErrExecutableNotFound.Error()
	default:
		return provision.ErrInternal.Error()
	}
}

func auditLog(r *http.Request, action string) *logrus.Entry {
	entry := logrus.WithField("action", action)
	if u := UserFromContext(r.Context()); u != nil {
		entry = entry.WithField("username", u.Username)
	}
	return entry
}

// trimKind drops the leading kind from a classified error message.
func trimKind(err error, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}

func writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrRequestBodyRequired) {
		writeMessage(w, http.StatusBadRequest, "Request body is required.", "")
		return
	}
	writeMessage(w, http.StatusBadRequest, err.Error(), "")
}
