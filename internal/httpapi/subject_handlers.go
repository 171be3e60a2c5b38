package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type createSubjectRequest struct {
	DisplayName string  `json:"display_name"`
	Faction     *string `json:"faction"`
}

func (s *Server) handleSubjects(c echo.Context) error {
	subjects, err := s.catalog.ListSubjects(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list subjects failed")
		return internalError(c, "Failed to load subjects")
	}
	return success(c, map[string]any{
		"items": subjects,
	})
}

func (s *Server) handleCreateSubject(c echo.Context) error {
	var req createSubjectRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return failValidation(c, map[string]string{"payload": "must be a JSON object"})
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return failValidation(c, map[string]string{"display_name": "is required"})
	}
	var faction *string
	if req.Faction != nil {
		if trimmed := strings.TrimSpace(*req.Faction); trimmed != "" {
			faction = &trimmed
		}
	}

	subject, err := s.catalog.CreateSubject(c.Request().Context(), name, faction)
	if err != nil {
		s.logger.Error().Err(err).Str("display_name", name).Msg("create subject failed")
		return internalError(c, "Failed to create subject")
	}
	return successWithStatus(c, http.StatusCreated, subject)
}
