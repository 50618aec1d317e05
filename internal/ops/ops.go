// Package ops implements the workspace operations shared by the CLI, the MCP
// server, and the HTTP API. Each operation takes an Input struct and returns
// an Output struct or a *errors.ScriptflowError.
package ops

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
)

// PlaceholderScript is the script of a project created without AI help.
const PlaceholderScript = "This is a new project. Upload a transcript or start writing!"

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterValidation("chat_context", func(fl validator.FieldLevel) bool {
			return project.Context(fl.Field().String()).Valid()
		})
	})
	return validate
}

// validateInput checks struct tags on an Input and reports the first failure
// as INVALID_REQUEST.
func validateInput(input any) error {
	err := inputValidator().Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		field := toSnake(e.Field())
		switch e.Tag() {
		case "required":
			return errors.NewInvalidRequest(fmt.Sprintf("%s is required", field))
		case "gt":
			return errors.NewInvalidRequest(fmt.Sprintf("%s must be greater than %s", field, e.Param()))
		case "min":
			return errors.NewInvalidRequest(fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "chat_context":
			return errors.NewInvalidRequest(fmt.Sprintf("%s must be one of %v", field, project.Contexts))
		default:
			return errors.NewInvalidRequest(fmt.Sprintf("%s is invalid (%s)", field, e.Tag()))
		}
	}
	return errors.NewInvalidRequest(err.Error())
}

// toSnake converts a Go field name to the snake_case name used on the wire.
func toSnake(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
			prevLower = false
		} else {
			prevLower = true
		}
		b.WriteRune(r)
	}
	return b.String()
}

// checkScriptSize rejects scripts over the configured character limit.
func checkScriptSize(cfg *config.Config, script string) error {
	if cfg == nil || cfg.MaxScriptChars <= 0 {
		return nil
	}
	if n := project.CountChars(script); n > cfg.MaxScriptChars {
		return errors.NewInvalidRequest(fmt.Sprintf("script is %d characters; the limit is %d", n, cfg.MaxScriptChars))
	}
	return nil
}

// requireAI fails when no AI client is configured.
func requireAI(client any) error {
	if client == nil {
		return errors.NewInvalidRequest("AI is not configured: set the API key environment variable")
	}
	return nil
}
