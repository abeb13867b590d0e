package server

import (
	"errors"
	"net/http"

	"wildwatch/internal/util"
	"wildwatch/pkg/auth"
	"wildwatch/services/api/internal/analysis"
	"wildwatch/services/api/internal/app"
	"wildwatch/services/api/internal/ingress"
	"wildwatch/services/api/internal/publish"
)

var passwordPolicyErrors = []error{
	auth.ErrPasswordTooShort,
	auth.ErrPasswordTooLong,
	auth.ErrPasswordNoUpper,
	auth.ErrPasswordNoLower,
	auth.ErrPasswordNoDigit,
	auth.ErrPasswordNoSpecial,
}

func isPasswordPolicyError(err error) bool {
	for _, target := range passwordPolicyErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeIdentityError maps account and credential errors.
func writeIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, app.ErrInvalidEmail),
		errors.Is(err, app.ErrDuplicateIdentity),
		errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrCurrentPasswordRequired),
		errors.Is(err, app.ErrCurrentPasswordMismatch),
		isPasswordPolicyError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrForbiddenSelfChange), errors.Is(err, app.ErrCannotDeleteSelf):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		util.LoggerFromContext(r.Context()).Error("identity request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeRecordError maps record store errors.
func writeRecordError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "No data found")
	default:
		util.LoggerFromContext(r.Context()).Error("record request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeIngressError maps multipart staging errors.
func writeIngressError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ingress.ErrNoFile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingress.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ingress.ErrUnsupportedMediaType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("receive upload failed", "err", err)
		writeError(w, http.StatusBadRequest, "invalid upload")
	}
}

type pipelineErrorResponse struct {
	Error   string `json:"error"`
	Leg     string `json:"leg,omitempty"`
	Details string `json:"details,omitempty"`
}

// writePipelineError maps analysis and publishing failures.
func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var analysisErr *analysis.Error
	var publishErr *publish.PublishError
	switch {
	case errors.As(err, &analysisErr):
		writeJSON(w, http.StatusBadGateway, pipelineErrorResponse{Error: analysis.ErrAnalysisFailed.Error(), Details: analysisErr.Message})
	case errors.As(err, &publishErr):
		writeJSON(w, http.StatusBadGateway, pipelineErrorResponse{
			Error:   publish.ErrPublishFailed.Error(),
			Leg:     string(publishErr.Leg),
			Details: publishErr.Detail,
		})
	case errors.Is(err, app.ErrPipelineUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("upload pipeline failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
