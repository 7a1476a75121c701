package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xynes/accounts-service/pkg/apperr"
)

// Meta carries request correlation data.
type Meta struct {
	RequestID string `json:"requestId"`
}

// ErrorBody is the error part of the envelope.
type ErrorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details *apperr.Details `json:"details,omitempty"`
}

// Body is the standard API response envelope.
type Body struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorBody  `json:"error,omitempty"`
	Meta  *Meta       `json:"meta,omitempty"`
}

func meta(requestID string) *Meta {
	if requestID == "" {
		return nil
	}
	return &Meta{RequestID: requestID}
}

// Success builds a success envelope.
func Success(data interface{}, requestID string) Body {
	return Body{OK: true, Data: data, Meta: meta(requestID)}
}

// Failure builds an error envelope.
func Failure(code, message, requestID string, details *apperr.Details) Body {
	return Body{
		OK:    false,
		Error: &ErrorBody{Code: code, Message: message, Details: details},
		Meta:  meta(requestID),
	}
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}, requestID string) {
	c.JSON(http.StatusOK, Success(data, requestID))
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}, requestID string) {
	c.JSON(http.StatusCreated, Success(data, requestID))
}

// Error sends the envelope for a classified error. Unclassified errors are
// reported as a generic internal error so store details never reach callers.
func Error(c *gin.Context, err error, requestID string) {
	e, ok := apperr.As(err)
	if !ok {
		Internal(c, requestID)
		return
	}
	message := e.Message
	if e.Kind == apperr.KindConfig {
		message = "Internal server error"
	}
	c.JSON(apperr.HTTPStatus(e.Kind), Failure(apperr.PublicCode(e.Kind), message, requestID, e.Details))
}

// Internal sends 500.
func Internal(c *gin.Context, requestID string) {
	c.JSON(http.StatusInternalServerError, Failure(string(apperr.KindInternal), "Internal server error", requestID, nil))
}
