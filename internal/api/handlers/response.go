package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"example.com/jonoshongjog/services/relief/internal/repositories"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Envelope is the shape of every response body
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// Responder writes envelopes; in production internal error detail is hidden
type Responder struct {
	Production bool
}

func (r Responder) ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func (r Responder) created(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data, Message: message})
}

func (r Responder) message(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: message})
}

// fail maps the service error taxonomy onto status codes
func (r Responder) fail(c *gin.Context, err error) {
	var (
		verr *services.ValidationError
		nerr *services.NotFoundError
		perr *services.PreconditionFailedError
		aerr *services.AuthError
		cerr *services.ConflictError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, Envelope{Error: verr.Message, Details: detailsOrNil(verr.Details)})
	case errors.As(err, &nerr):
		c.JSON(http.StatusNotFound, Envelope{Error: nerr.Error()})
	case errors.As(err, &perr):
		details := gin.H{"status": perr.Status, "allowed": perr.Allowed}
		if perr.Reason != "" {
			details["reason"] = perr.Reason
		}
		c.JSON(http.StatusBadRequest, Envelope{Error: perr.Error(), Details: details})
	case errors.As(err, &aerr):
		status := http.StatusUnauthorized
		if aerr.Forbidden {
			status = http.StatusForbidden
		}
		c.JSON(status, Envelope{Error: aerr.Message})
	case errors.As(err, &cerr):
		c.JSON(http.StatusConflict, Envelope{Error: cerr.Message})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Str("request_id", c.GetString("X-Request-ID")).Msg("Request failed")
		body := Envelope{Error: "Internal server error"}
		if !r.Production {
			body.Message = err.Error()
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

func detailsOrNil(d map[string]interface{}) interface{} {
	if len(d) == 0 {
		return nil
	}
	return d
}

// bindJSON decodes and validates a body, answering 400 with per-field details on failure
func (r Responder) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		r.fail(c, bindError(err))
		return false
	}
	return true
}

func (r Responder) bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		r.fail(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]gin.H, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, gin.H{
				"field":   fieldName(fe),
				"rule":    fe.Tag(),
				"param":   fe.Param(),
				"message": fieldMessage(fe),
			})
		}
		return &services.ValidationError{Message: "Validation failed", Details: map[string]interface{}{"fields": fields}}
	}
	return &services.ValidationError{Message: "Invalid request body", Details: map[string]interface{}{"reason": err.Error()}}
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return toSnake(ns)
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '.' {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt", "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "phone":
		return "must be a valid phone number"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// pathID parses a uuid path parameter
func pathID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, &services.ValidationError{
			Message: "Invalid " + name,
			Details: map[string]interface{}{name: c.Param(name)},
		}
	}
	return id, nil
}

// PageQuery is the shared pagination query
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

func (q PageQuery) page() repositories.Page {
	return repositories.Page{Limit: q.Limit, Offset: q.Offset}
}

func optionalUUID(raw, name string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &services.ValidationError{Message: "Invalid " + name, Details: map[string]interface{}{name: raw}}
	}
	return &id, nil
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
