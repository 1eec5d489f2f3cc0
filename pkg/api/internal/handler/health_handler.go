package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wg-gateway/pkg/status"
)

func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func Ready(statusService status.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := statusService.Ready(r.Context()); err != nil {
			logrus.
				WithError(err).
				WithField("iface", statusService.Iface()).
				Warn("readiness check failed")
			writeMessage(w, http.StatusServiceUnavailable, "not ready", statusService.Iface())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
