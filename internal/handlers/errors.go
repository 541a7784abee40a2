// File: internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/iyunix/go-medgemma/internal/domain"
	"github.com/iyunix/go-medgemma/internal/imaging"
	"github.com/iyunix/go-medgemma/internal/metrics"
	"github.com/iyunix/go-medgemma/internal/services/scheduler"
)

// retryAfterBusy is sent with 503 when the generation queue is full.
const retryAfterBusy = 10

// apiError is the HTTP rendering of a request failure.
type apiError struct {
	status     int
	code       string
	message    string
	field      string
	retryAfter int
}

// classifyError maps the package error taxonomy onto HTTP. imageField names
// the request field that carried the image, if any.
func classifyError(err error, imageField string) apiError {
	var (
		dve *domain.ValidationError
		ive *imaging.ValidationError
		ide *imaging.DecodeError
		uce *imaging.UnsupportedContainerError
		mbe *http.MaxBytesError
		se  *scheduler.Error
	)
	switch {
	case errors.As(err, &dve):
		return apiError{status: http.StatusBadRequest, code: dve.Code, message: dve.Message, field: dve.Field}
	case errors.As(err, &ive):
		metrics.ObserveImageRejection(string(ive.Invariant))
		return apiError{
			status:  http.StatusBadRequest,
			code:    "IMAGE_" + strings.ToUpper(string(ive.Invariant)),
			message: ive.Error(),
			field:   imageField,
		}
	case errors.As(err, &ide):
		metrics.ObserveImageRejection("decode")
		return apiError{status: http.StatusBadRequest, code: "IMAGE_DECODE", message: ide.Error(), field: imageField}
	case errors.As(err, &uce):
		metrics.ObserveImageRejection("container")
		return apiError{status: http.StatusUnsupportedMediaType, code: "UNSUPPORTED_MEDIA_TYPE", message: uce.Error(), field: imageField}
	case errors.As(err, &mbe):
		return apiError{status: http.StatusRequestEntityTooLarge, code: "BODY_TOO_LARGE",
			message: "request body exceeds " + strconv.FormatInt(mbe.Limit, 10) + " bytes"}
	case errors.As(err, &se):
		switch se.Type {
		case scheduler.ErrTypeBusy:
			return apiError{status: http.StatusServiceUnavailable, code: "SERVER_BUSY",
				message: "the model is busy, retry shortly", retryAfter: retryAfterBusy}
		case scheduler.ErrTypeClosed:
			return apiError{status: http.StatusServiceUnavailable, code: "SHUTTING_DOWN", message: se.Message}
		case scheduler.ErrTypeTimeout:
			return apiError{status: http.StatusGatewayTimeout, code: "GENERATION_TIMEOUT", message: se.Message}
		case scheduler.ErrTypeCancelled:
			return apiError{status: http.StatusServiceUnavailable, code: "GENERATION_CANCELLED", message: se.Message}
		}
		return apiError{status: http.StatusInternalServerError, code: "GENERATION_FAILED", message: "model generation failed"}
	}
	return apiError{status: http.StatusInternalServerError, code: "INTERNAL_ERROR", message: "internal server error"}
}

func writeAPIError(w http.ResponseWriter, e apiError) {
	if e.retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.retryAfter))
	}
	writeError(w, e.status, e.code, e.message, e.field)
}

// markerMessage is the text shown in the terminal [error: ...] marker once
// output has started.
func markerMessage(err error) string {
	var se *scheduler.Error
	if errors.As(err, &se) {
		if se.Type == scheduler.ErrTypeGeneration {
			return "model generation failed"
		}
		return se.Message
	}
	return "internal server error"
}
