package service

import (
	"fmt"

	"github.com/epicwp/translation-orchestrator/internal/store/model"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id int64, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %d not found", resourceType, id)}
}

func NewErrRunNotFound(id int64) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "run")
}

func NewErrJobNotFound(id int64) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

func NewErrTaskNotFound(id int64) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "task")
}

type ErrInvalidRunConfig struct {
	error
}

func NewErrInvalidRunConfig(message string) *ErrInvalidRunConfig {
	return &ErrInvalidRunConfig{fmt.Errorf("invalid run configuration: %s", message)}
}

type ErrRunAlreadyTerminal struct {
	error
}

func NewErrRunAlreadyTerminal(id int64, status model.RunStatus) *ErrRunAlreadyTerminal {
	return &ErrRunAlreadyTerminal{fmt.Errorf("run %d is already %s", id, status)}
}
