package validation

import (
	"fmt"

	dErrors "credreg/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	MaxBodySize = 64 * 1024
)

// Slice element count limits
const (
	// MaxAttestorsPerTrack bounds the attestor list of one accreditation grant.
	MaxAttestorsPerTrack = 64

	// MaxBatchVerify is the default cap on ids in one batch verification.
	MaxBatchVerify = 1000
)

// String element length limits
const (
	MaxContentHashLength = 256
	MaxMetadataLength    = 4096
	MaxReasonLength      = 512
	MaxCertificateLength = 256
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if len(v) > max {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
		}
	}
	return nil
}
