package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/loopgrid/ringd/internal/errors"
)

const (
	// Size limits
	MaxRingbufferNameSize = 255
	MaxPayloadSize        = 10 * 1024 * 1024 // 10 MB

	// Read limits
	MaxReadCount = 1000
)

// Validator validates ringbuffer operations
type Validator struct {
	maxNameSize    int
	maxPayloadSize int
	maxReadCount   int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxNameSize:    MaxRingbufferNameSize,
		maxPayloadSize: MaxPayloadSize,
		maxReadCount:   MaxReadCount,
	}
}

// NewValidatorWithLimits creates a validator with custom limits
func NewValidatorWithLimits(maxNameSize, maxPayloadSize, maxReadCount int) *Validator {
	return &Validator{
		maxNameSize:    maxNameSize,
		maxPayloadSize: maxPayloadSize,
		maxReadCount:   maxReadCount,
	}
}

// ValidateAdd validates an add operation
func (v *Validator) ValidateAdd(name string, payload []byte) error {
	if err := v.ValidateRingbufferName(name); err != nil {
		return err
	}
	return v.ValidatePayload(payload)
}

// ValidateRingbufferName validates a ringbuffer name
func (v *Validator) ValidateRingbufferName(name string) error {
	if name == "" {
		return errors.InvalidRingbufferName(name, "name cannot be empty")
	}

	if len(name) > v.maxNameSize {
		return errors.InvalidRingbufferName(name, fmt.Sprintf("name exceeds maximum size of %d bytes", v.maxNameSize))
	}

	// Names travel in URL paths, so the separator is forbidden.
	if strings.Contains(name, "/") {
		return errors.InvalidRingbufferName(name, "name cannot contain '/' character")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return errors.InvalidRingbufferName(name, "name cannot contain control characters")
		}
	}

	// Check for null bytes (security)
	if strings.Contains(name, "\x00") {
		return errors.InvalidRingbufferName(name, "name cannot contain null bytes")
	}

	return nil
}

// ValidatePayload validates an item payload. Nil payloads are valid; a
// ringbuffer slot can hold a nil item.
func (v *Validator) ValidatePayload(payload []byte) error {
	if payload == nil {
		return nil
	}

	if len(payload) > v.maxPayloadSize {
		return errors.PayloadTooLarge(len(payload), v.maxPayloadSize)
	}

	return nil
}

// ValidateReadCount validates the batch size of a readMany operation
func (v *Validator) ValidateReadCount(count int) error {
	if count < 1 {
		return errors.InvalidArgument(
			fmt.Sprintf("read count must be at least 1, got %d", count),
			nil,
		)
	}
	if count > v.maxReadCount {
		return errors.InvalidArgument(
			fmt.Sprintf("read count exceeds maximum of %d: %d", v.maxReadCount, count),
			nil,
		)
	}
	return nil
}

// SanitizeRingbufferName sanitizes a name by removing forbidden characters
// This is useful for handling user input that might not be perfectly formatted
func SanitizeRingbufferName(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '/' {
			return -1 // Remove character
		}
		return r
	}, name)

	sanitized = strings.TrimSpace(sanitized)

	if len(sanitized) > MaxRingbufferNameSize {
		sanitized = sanitized[:MaxRingbufferNameSize]
	}

	return sanitized
}
