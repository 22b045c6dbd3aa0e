package http

import (
	"net/http"

	"billing/internal/log"
)

// handleReset wipes every table after the caller confirms with "RESET" and,
// when configured, the reset secret.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, log.OpReset)
		return
	}

	res, err := s.admin.Reset(r.Context(), req.Confirm, req.Secret)
	if err != nil {
		writeError(w, r, err, log.OpReset)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentAdmin).
		WarnContext(r.Context(), "Reset requested over HTTP",
			log.FieldClientIP, s.detector.ExtractClientIP(r))

	b := Success()
	if res.Backup != "" {
		b.Field("backup", res.Backup)
	}
	b.Write(w)
}
