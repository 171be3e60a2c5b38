package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/mkquotes/internal/db"
	"horse.fit/mkquotes/internal/dedup"
	payloadschema "horse.fit/mkquotes/schema"
)

type checkCommentRequest struct {
	SubjectID int64  `json:"subject_id"`
	Content   string `json:"content"`
	SourceURL string `json:"source_url"`
}

type setVerificationRequest struct {
	IsVerified *bool `json:"is_verified"`
}

type createCommentResponse struct {
	IsDuplicate    bool        `json:"is_duplicate"`
	DuplicateOf    *int64      `json:"duplicate_of"`
	DuplicateGroup string      `json:"duplicate_group"`
	Comment        *db.Comment `json:"comment"`
}

func (s *Server) handleCreateComment(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return failValidation(c, map[string]string{"payload": "could not read request body"})
	}

	payload, err := payloadschema.ValidateCommentPayload(body)
	if err != nil {
		var payloadErr *payloadschema.PayloadError
		if errors.As(err, &payloadErr) {
			return failValidation(c, payloadErr.Fields)
		}
		s.logger.Error().Err(err).Msg("validate comment payload failed")
		return internalError(c, "Failed to validate comment")
	}

	stored, err := s.comments.CreateComment(c.Request().Context(), dedup.NewComment{
		SubjectID:         payload.SubjectID,
		Content:           payload.Content,
		SourceURL:         payload.SourceURL,
		SourcePlatform:    payload.SourcePlatform,
		SourceType:        payload.SourceType,
		SourceName:        payload.SourceName,
		SourceCredibility: payload.SourceCredibility,
		Keywords:          payload.Keywords,
		CommentDate:       payload.ParsedCommentDate(),
	})
	if err != nil {
		return s.writeServiceError(c, err, "create comment")
	}

	return successWithStatus(c, http.StatusCreated, createCommentResponse{
		IsDuplicate:    !stored.IsPrimary(),
		DuplicateOf:    stored.DuplicateOf,
		DuplicateGroup: stored.DuplicateGroup,
		Comment:        stored,
	})
}

func (s *Server) handleCheckComment(c echo.Context) error {
	var req checkCommentRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return failValidation(c, map[string]string{"payload": "must be a JSON object"})
	}

	result, err := s.comments.CheckForDuplicates(c.Request().Context(), req.SubjectID, req.Content, req.SourceURL)
	if err != nil {
		return s.writeServiceError(c, err, "check comment")
	}
	return success(c, result)
}

func (s *Server) handleComments(c echo.Context) error {
	fieldErrors := map[string]string{}
	filter := dedup.ListFilter{
		Platform: strings.ToLower(strings.TrimSpace(c.QueryParam("platform"))),
	}

	if raw := strings.TrimSpace(c.QueryParam("subject_id")); raw != "" {
		subjectID, err := parseID(raw)
		if err != nil {
			fieldErrors["subject_id"] = err.Error()
		} else {
			filter.SubjectID = &subjectID
		}
	}

	verified, err := parseBoolFilter(c.QueryParam("verified"))
	if err != nil {
		fieldErrors["verified"] = err.Error()
	}
	filter.Verified = verified

	from, err := parseTimeFilter(c.QueryParam("from"), false)
	if err != nil {
		fieldErrors["from"] = "must be RFC3339 or YYYY-MM-DD"
	}
	filter.From = from

	to, err := parseTimeFilter(c.QueryParam("to"), true)
	if err != nil {
		fieldErrors["to"] = "must be RFC3339 or YYYY-MM-DD"
	}
	filter.To = to

	if from != nil && to != nil && !from.Before(*to) {
		fieldErrors["to"] = "must be after from"
	}

	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		fieldErrors["page"] = err.Error()
	}
	filter.Page = page

	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		fieldErrors["page_size"] = err.Error()
	}
	filter.PageSize = pageSize

	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	result, err := s.comments.ListPrimaryComments(c.Request().Context(), filter)
	if err != nil {
		return s.writeServiceError(c, err, "list comments")
	}
	return success(c, result)
}

func (s *Server) handleSubjectComments(c echo.Context) error {
	subjectID, err := parseID(c.Param("subject_id"))
	if err != nil {
		return failValidation(c, map[string]string{"subject_id": err.Error()})
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), 0, 1, dedup.MaxPrimaryLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	items, err := s.comments.GetPrimaryComments(c.Request().Context(), subjectID, limit)
	if err != nil {
		return s.writeServiceError(c, err, "list subject comments")
	}
	return success(c, map[string]any{
		"subject_id": subjectID,
		"items":      items,
	})
}

func (s *Server) handleSetVerification(c echo.Context) error {
	commentID, err := parseID(c.Param("comment_id"))
	if err != nil {
		return failValidation(c, map[string]string{"comment_id": err.Error()})
	}

	var req setVerificationRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return failValidation(c, map[string]string{"payload": "must be a JSON object"})
	}
	if req.IsVerified == nil {
		return failValidation(c, map[string]string{"is_verified": "is required"})
	}

	comment, err := s.comments.SetVerified(c.Request().Context(), commentID, *req.IsVerified)
	if err != nil {
		return s.writeServiceError(c, err, "update verification")
	}
	return success(c, comment)
}

func (s *Server) handleDeleteComment(c echo.Context) error {
	commentID, err := parseID(c.Param("comment_id"))
	if err != nil {
		return failValidation(c, map[string]string{"comment_id": err.Error()})
	}

	result, err := s.comments.DeleteComment(c.Request().Context(), commentID)
	if err != nil {
		return s.writeServiceError(c, err, "delete comment")
	}
	return success(c, map[string]any{
		"comment_id": commentID,
		"deleted":    result.Deleted,
		"released":   result.Released,
		"repointed":  result.Repointed,
	})
}
