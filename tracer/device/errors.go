package device

import "errors"

var (
	ErrOutOfMemory         = errors.New("device: out of device memory")
	ErrResourceReleased    = errors.New("device: resource has been released")
	ErrHostAccessDenied    = errors.New("device: resource is not host accessible")
	ErrOutOfBounds         = errors.New("device: access out of resource bounds")
	ErrCommandListClosed   = errors.New("device: command list is closed")
	ErrCommandListOpen     = errors.New("device: command list must be closed before execution")
	ErrStateMismatch       = errors.New("device: resource state mismatch")
	ErrUnknownExport       = errors.New("device: unknown shader export")
	ErrFenceNotSignaled    = errors.New("device: fence value has not been signaled")
	ErrInvalidDescriptor   = errors.New("device: invalid descriptor slot")
	ErrMissingPipelineData = errors.New("device: dispatch requires a pipeline and a descriptor heap")
)
