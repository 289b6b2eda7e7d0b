package flow

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OAuthError is an OAuth2-shaped error rendered as
// {"error": ..., "error_description": ...} with its HTTP status.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

func invalidRequest(description string) *OAuthError {
	return &OAuthError{Code: "invalid_request", Description: description, Status: http.StatusBadRequest}
}

func invalidClient(description string) *OAuthError {
	return &OAuthError{Code: "invalid_client", Description: description, Status: http.StatusUnauthorized}
}

func invalidGrant(description string) *OAuthError {
	return &OAuthError{Code: "invalid_grant", Description: description, Status: http.StatusBadRequest}
}

func unsupportedGrantType() *OAuthError {
	return &OAuthError{Code: "unsupported_grant_type", Status: http.StatusBadRequest}
}

func invalidToken(description string) *OAuthError {
	return &OAuthError{Code: "invalid_token", Description: description, Status: http.StatusUnauthorized}
}

func serverError(description string) *OAuthError {
	return &OAuthError{Code: "server_error", Description: description, Status: http.StatusInternalServerError}
}

// writeError renders an OAuthError and aborts the request.
func writeError(c *gin.Context, err *OAuthError) {
	c.AbortWithStatusJSON(err.Status, err)
}
