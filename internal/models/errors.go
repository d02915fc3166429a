package models

import "errors"

var (
	// ErrUnknownTool is returned when a tool type has no template.
	ErrUnknownTool = errors.New("no such template")
	// ErrInvalidTemplate is returned when a template fails structural validation.
	ErrInvalidTemplate = errors.New("invalid template")
	// ErrDomainNotFound is returned when a domain id is absent from an assessment.
	ErrDomainNotFound = errors.New("domain not found")
	// ErrToolDisabled is returned when a project has not enabled the requested tool.
	ErrToolDisabled = errors.New("tool not enabled for project")
	// ErrInvalidJudgment is returned when a verified judgment is not an enumerated level.
	ErrInvalidJudgment = errors.New("invalid judgment level")
)
