package cryptosvc

import "fmt"

// Code is the closed taxonomy of error categories the core can return.
// Codes are categorical, never free-form strings, so callers can switch on
// them without string matching.
type Code string

const (
	// Input
	CodeInvalidInput       Code = "InvalidInput"
	CodeInvalidKeySize     Code = "InvalidKeySize"
	CodeInvalidIvSize      Code = "InvalidIvSize"
	CodeInvalidTagSize     Code = "InvalidTagSize"
	CodeSizeLimitExceeded  Code = "SizeLimitExceeded"

	// Crypto
	CodeCryptoError         Code = "CryptoError"
	CodeIntegrityError      Code = "IntegrityError"
	CodePaddingError        Code = "PaddingError"
	CodeSignatureInvalid    Code = "SignatureInvalid"
	CodeEncryptionFailed    Code = "EncryptionFailed"
	CodeDecryptionFailed    Code = "DecryptionFailed"
	CodeKeyGenerationFailed Code = "KeyGenerationFailed"
	CodeInvalidKeyType      Code = "InvalidKeyType"

	// Key lifecycle
	CodeKeyNotFound      Code = "KeyNotFound"
	CodeKeyDeprecated    Code = "KeyDeprecated"
	CodeKeyRotationFailed Code = "KeyRotationFailed"
	CodeKeyExpired       Code = "KeyExpired"
	CodeKeyInvalidState  Code = "KeyInvalidState"

	// Collaborator
	CodeServiceUnavailable  Code = "ServiceUnavailable"
	CodeTimeout             Code = "Timeout"
	CodeKmsUnavailable      Code = "KmsUnavailable"
	CodeCacheMiss           Code = "CacheMiss"
	CodeCacheError          Code = "CacheError"
	CodeCacheUnavailable    Code = "CacheUnavailable"
	CodeLoggingError        Code = "LoggingError"
	CodeLoggingUnavailable  Code = "LoggingUnavailable"

	// Policy
	CodeAuthenticationFailed Code = "AuthenticationFailed"
	CodeAuthorizationFailed  Code = "AuthorizationFailed"
	CodePermissionDenied     Code = "PermissionDenied"

	// Config
	CodeConfigError   Code = "ConfigError"
	CodeConfigMissing Code = "ConfigMissing"
	CodeConfigInvalid Code = "ConfigInvalid"
)

// genericMessages maps each code to the fixed, non-leaky message the core
// is allowed to surface. Messages never carry plaintext, key material,
// positions within data, or hex dumps (spec §7, property 16).
var genericMessages = map[Code]string{
	CodeInvalidInput:      "Invalid input",
	CodeInvalidKeySize:    "Invalid key size",
	CodeInvalidIvSize:     "Invalid IV size",
	CodeInvalidTagSize:    "Invalid tag size",
	CodeSizeLimitExceeded: "Input exceeds size limit",

	CodeCryptoError:         "Cryptographic operation failed",
	CodeIntegrityError:      "Data integrity verification failed",
	CodePaddingError:        "Invalid padding",
	CodeSignatureInvalid:    "Signature verification failed",
	CodeEncryptionFailed:    "Encryption failed",
	CodeDecryptionFailed:    "Decryption failed",
	CodeKeyGenerationFailed: "Key generation failed",
	CodeInvalidKeyType:      "Invalid key type for this operation",

	CodeKeyNotFound:       "Key not found",
	CodeKeyDeprecated:     "Key is deprecated",
	CodeKeyRotationFailed: "Key rotation failed",
	CodeKeyExpired:        "Key has expired",
	CodeKeyInvalidState:   "Key is not in a valid state for this operation",

	CodeServiceUnavailable: "Service unavailable",
	CodeTimeout:            "Operation timed out",
	CodeKmsUnavailable:     "Key management backend unavailable",
	CodeCacheMiss:          "Cache miss",
	CodeCacheError:         "Cache error",
	CodeCacheUnavailable:   "Cache unavailable",
	CodeLoggingError:       "Logging error",
	CodeLoggingUnavailable: "Logging unavailable",

	CodeAuthenticationFailed: "Authentication failed",
	CodeAuthorizationFailed:  "Authorization failed",
	CodePermissionDenied:     "Permission denied",

	CodeConfigError:   "Configuration error",
	CodeConfigMissing: "Required configuration missing",
	CodeConfigInvalid: "Invalid configuration",
}

// Error is the sole error type crossing the core's public API boundary. It
// carries a categorical code, a generic message, and the correlation id of
// the request that produced it. Internal helpers return plain `error`
// wrapped with fmt.Errorf and are translated to Error only at the boundary
// of an exported method.
type Error struct {
	Code          Code
	Message       string
	CorrelationID string
	cause         error
}

// NewError builds an Error with the fixed generic message for code,
// attaching correlationID for downstream log/metric correlation.
func NewError(code Code, correlationID string) *Error {
	return &Error{Code: code, Message: genericMessages[code], CorrelationID: correlationID}
}

// Wrap builds an Error around cause for internal triage (visible via
// errors.Unwrap / %+v-style inspection in tests and logs) while keeping the
// user-visible Message generic.
func Wrap(code Code, correlationID string, cause error) *Error {
	return &Error{Code: code, Message: genericMessages[code], CorrelationID: correlationID, cause: cause}
}

func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("%s: %s (correlation_id=%s)", e.Code, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsRetryable is a pure function of the code: true for collaborator errors
// that are plausibly transient.
func (c Code) IsRetryable() bool {
	switch c {
	case CodeServiceUnavailable, CodeTimeout, CodeKmsUnavailable,
		CodeCacheUnavailable, CodeLoggingUnavailable:
		return true
	default:
		return false
	}
}

// IsClientError is a pure function of the code: true when the caller, not
// the service, is at fault.
func (c Code) IsClientError() bool {
	switch c {
	case CodeInvalidInput, CodeInvalidKeySize, CodeInvalidIvSize, CodeInvalidTagSize,
		CodeSizeLimitExceeded, CodeKeyNotFound, CodeAuthenticationFailed,
		CodeAuthorizationFailed, CodePermissionDenied, CodeInvalidKeyType:
		return true
	default:
		return false
	}
}
