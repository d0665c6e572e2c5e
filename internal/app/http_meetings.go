package app

import (
	"fmt"
	"net/http"
)

// routeMeetings dispatches /api/meetings/... and /api/admin/meetings/...
func (s *HTTPServer) routeMeetings(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	// /api/admin/meetings/:id[/action]
	if parts[1] == "admin" {
		if len(parts) < 4 || parts[2] != "meetings" {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		meetingID := parts[3]

		if len(parts) == 4 && r.Method == http.MethodDelete {
			if err := s.service.DeleteMeeting(r.Context(), meetingID, session); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}

		if len(parts) == 5 && r.Method == http.MethodPost {
			var payload map[string]any
			var err error
			switch parts[4] {
			case "archive":
				payload, err = s.service.ArchiveMeeting(r.Context(), meetingID, session)
			case "unarchive":
				payload, err = s.service.UnarchiveMeeting(r.Context(), meetingID, session)
			default:
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
				return
			}
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}

		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// /api/meetings
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListMeetings(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list meetings", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"meetings": items})
		case http.MethodPost:
			var body MeetingInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateMeeting(r.Context(), body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/meetings/archived
	if len(parts) == 3 && parts[2] == "archived" && r.Method == http.MethodGet {
		items, err := s.service.ListArchivedMeetings(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list archived meetings", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"meetings": items})
		return
	}

	// /api/meetings/:id
	if len(parts) == 3 {
		meetingID := parts[2]
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetMeeting(r.Context(), meetingID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPut:
			var body MeetingInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateMeeting(r.Context(), meetingID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/meetings/:id/<action>
	if len(parts) == 4 {
		meetingID := parts[2]
		switch parts[3] {
		case "archive":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			payload, err := s.service.ArchiveMeeting(r.Context(), meetingID, session)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case "export":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			result, err := s.service.ExportMinutes(r.Context(), meetingID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			w.Header().Set("Content-Type", result.MimeType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(result.Data)
		case "points":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			var body MeetingPointInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.AddMeetingPoint(r.Context(), meetingID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	// /api/meetings/:id/points/:pointId
	if len(parts) == 5 && parts[3] == "points" {
		pointID := parts[4]
		switch r.Method {
		case http.MethodPatch:
			var body MeetingPointPatchInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.PatchMeetingPoint(r.Context(), pointID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteMeetingPoint(r.Context(), pointID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
