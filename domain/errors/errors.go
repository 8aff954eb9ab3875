// Package errors provides the error taxonomy of the cross-boundary ABI.
// All error types support error unwrapping via errors.As() and errors.Is().
//
// Sequencing violations (a second setup while registered, calls on a faulted
// or closed instance) are reported with sentinel errors. Memory failures carry
// enough context to locate the offending allocation.
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/quillmc/quill-abi/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

var (
	// ErrAlreadyRegistered is returned by setup while a registration is live.
	ErrAlreadyRegistered = stdErrors.New("plugin already registered")

	// ErrNotRegistered is returned by calls that need a live registration.
	ErrNotRegistered = stdErrors.New("plugin not registered")

	// ErrInstanceFaulted is returned by every call on an instance that trapped
	// or failed a memory operation.
	ErrInstanceFaulted = stdErrors.New("plugin instance faulted")

	// ErrInstanceClosed is returned by calls on a closed instance.
	ErrInstanceClosed = stdErrors.New("plugin instance closed")
)

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
// This function recognizes custom error types and categorizes them appropriately.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	switch {
	case stdErrors.Is(err, ErrAlreadyRegistered):
		return &entities.ErrorDetail{Message: err.Error(), Type: "sequence", Code: "double_setup"}
	case stdErrors.Is(err, ErrNotRegistered):
		return &entities.ErrorDetail{Message: err.Error(), Type: "sequence", Code: "not_registered"}
	case stdErrors.Is(err, ErrInstanceFaulted):
		return &entities.ErrorDetail{Message: err.Error(), Type: "sequence", Code: "faulted", Fatal: true}
	case stdErrors.Is(err, ErrInstanceClosed):
		return &entities.ErrorDetail{Message: err.Error(), Type: "sequence", Code: "closed"}
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// Fatal reports whether err leaves a guest instance unusable: traps, failed
// deallocations, layout mismatches and out-of-range addresses.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		lm *LayoutMismatchError
		ar *AddressOutOfRangeError
		df *DeallocationFailedError
		gc *GuestCallError
	)
	return stdErrors.As(err, &lm) || stdErrors.As(err, &ar) ||
		stdErrors.As(err, &df) || stdErrors.As(err, &gc) ||
		stdErrors.Is(err, ErrInstanceFaulted)
}

// LayoutMismatchError reports a deallocation whose (size, align) does not match
// a live allocation. The heap may already be corrupted; the affected call must
// be aborted.
type LayoutMismatchError struct {
	Addr      uint64
	Size      uint32
	Align     uint32
	LiveSize  uint32
	LiveAlign uint32
	Live      bool // false when Addr is not a live allocation at all
}

func (e *LayoutMismatchError) Error() string {
	if !e.Live {
		return fmt.Sprintf("layout mismatch: 0x%x is not a live allocation (size %d, align %d)",
			e.Addr, e.Size, e.Align)
	}
	return fmt.Sprintf("layout mismatch at 0x%x: freed with size %d align %d, allocated with size %d align %d",
		e.Addr, e.Size, e.Align, e.LiveSize, e.LiveAlign)
}

// ToErrorDetail implements DetailedError.
func (e *LayoutMismatchError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "memory", Code: "layout_mismatch", Fatal: true}
}

// AddressOutOfRangeError reports a pointer or offset outside the memory it was
// translated against, or a translation through a window invalidated by growth.
type AddressOutOfRangeError struct {
	Addr   uint64
	Length uint32
	Limit  uint64
	Stale  bool
}

func (e *AddressOutOfRangeError) Error() string {
	if e.Stale {
		return fmt.Sprintf("address 0x%x out of range: memory was grown or moved since translation", e.Addr)
	}
	return fmt.Sprintf("address 0x%x (+%d) out of range (limit 0x%x)", e.Addr, e.Length, e.Limit)
}

// ToErrorDetail implements DetailedError.
func (e *AddressOutOfRangeError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "abi", Code: "address_out_of_range", Fatal: true}
}

// DeallocationFailedError reports the sub-allocation at which the recursive
// free protocol stopped. Path names the field, e.g. "systems[0].name".
type DeallocationFailedError struct {
	Err   error
	Path  string
	Addr  uint64
	Size  uint32
	Align uint32
}

func (e *DeallocationFailedError) Error() string {
	path := e.Path
	if path == "" {
		path = "<root>"
	}
	return fmt.Sprintf("deallocation of %s (0x%x, size %d, align %d) failed: %v",
		path, e.Addr, e.Size, e.Align, e.Err)
}

func (e *DeallocationFailedError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *DeallocationFailedError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "memory",
		Code:    "deallocation_failed",
		Path:    e.Path,
		Fatal:   true,
		Wrapped: ToErrorDetail(e.Err),
	}
}

// GuestCallError reports a trap or runtime failure while calling a guest export.
type GuestCallError struct {
	Err    error
	Plugin string
	Export string
}

func (e *GuestCallError) Error() string {
	return fmt.Sprintf("plugin %s: call to %q failed: %v", e.Plugin, e.Export, e.Err)
}

func (e *GuestCallError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *GuestCallError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "guest", Code: e.Export, Fatal: true}
}

// MissingExportError reports a guest module lacking a required export.
type MissingExportError struct {
	Plugin string
	Export string
}

func (e *MissingExportError) Error() string {
	return fmt.Sprintf("plugin %s does not export %q", e.Plugin, e.Export)
}

// ToErrorDetail implements DetailedError.
func (e *MissingExportError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "abi", Code: "missing_export"}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// MemoryError represents a memory allocation failure.
type MemoryError struct {
	Requested int // Requested allocation size
	Current   int // Current total allocated
	Limit     int // Maximum allowed
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory allocation failed: requested %d bytes, current %d bytes, limit %d bytes",
		e.Requested, e.Current, e.Limit)
}

// ToErrorDetail implements DetailedError.
func (e *MemoryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "memory", Code: "memory_limit"}
}

// WireFormatError represents a wire format encoding/decoding error.
type WireFormatError struct {
	Err       error
	Operation string
	Type      string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire format %s failed for %s: %v", e.Operation, e.Type, e.Err)
}

func (e *WireFormatError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WireFormatError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "abi",
		Code:    "wire_format",
		Wrapped: ToErrorDetail(stdErrors.Unwrap(e)),
	}
}
