package http

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// --- Response Types ---

// ErrorResponse is the error format of the session authenticated pages.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// ApiResponse is the envelope of every /api/v1 response.
type ApiResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Details    any    `json:"details"`
	StatusCode int    `json:"status_code"`
	Data       any    `json:"data"`
}

// RedirectResponse tells a form client where to go next.
type RedirectResponse struct {
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect"`
}

// --- API Helpers ---

// respondData sends a successful envelope with data.
func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, ApiResponse{
		Success:    true,
		Message:    "Success",
		StatusCode: http.StatusOK,
		Data:       data,
	})
}

// respondAPIError sends a failed envelope. details may be nil, a string or a list.
func respondAPIError(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ApiResponse{
		Success:    false,
		Message:    message,
		Details:    details,
		StatusCode: status,
	})
}

// renderAPIError aborts with a failed envelope. Used by the auth middleware.
func renderAPIError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ApiResponse{
		Success:    false,
		Message:    message,
		StatusCode: status,
	})
}

// respondAPIInternalError logs the error and sends a 500 envelope.
func respondAPIInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	respondAPIError(c, http.StatusInternalServerError, "Internal Server Error", nil)
}

// --- Page Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// respondNotFound sends a 404 Not Found response.
func respondNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: message})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// respondError sends an error response with the given status code.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// respondRedirect finishes a form post. Browsers follow the Location header,
// JSON clients read the body.
func respondRedirect(c *gin.Context, location, message string) {
	c.Header("Location", location)
	c.JSON(http.StatusSeeOther, RedirectResponse{Message: message, Redirect: location})
}

// --- Parameter Parsing ---

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	idStr := c.Param(paramName)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseFormID reads an unsigned integer form field.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseFormID(c *gin.Context, field string) (uint, bool) {
	idStr := c.PostForm(field)
	if idStr == "" {
		respondBadRequest(c, field+" is required")
		return 0, false
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		respondBadRequest(c, "invalid "+field)
		return 0, false
	}
	return uint(id), true
}

// intQuery reads an integer query parameter. Missing or malformed values
// give def.
func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
