// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errors

const (
	// Capture errors.
	ErrCapability  ErrorCode = "capability_unsupported"
	ErrInvalidMode ErrorCode = "invalid_mode"
	ErrSubscribe   ErrorCode = "subscribe_failed"
	ErrUnsubscribe ErrorCode = "unsubscribe_failed"

	// Log and delivery errors.
	ErrIO       ErrorCode = "io_failed"
	ErrDelivery ErrorCode = "delivery_failed"
	ErrParse    ErrorCode = "parse_failed"

	// Transport errors.
	ErrConnect ErrorCode = "connect_failed"
	ErrExport  ErrorCode = "export_failed"

	// Configuration errors.
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrReadConfig    ErrorCode = "read_config_failed"

	// Storage errors.
	ErrStorageInit   ErrorCode = "storage_init_failed"
	ErrStorageAccess ErrorCode = "storage_access_failed"
	ErrStorageClose  ErrorCode = "storage_close_failed"
)

var messages = map[ErrorCode]string{
	ErrCapability:    "Sensor mode not supported",
	ErrInvalidMode:   "Invalid capture mode",
	ErrSubscribe:     "Failed to subscribe to sensor",
	ErrUnsubscribe:   "Failed to unsubscribe from sensor",
	ErrIO:            "Log file operation failed",
	ErrDelivery:      "Delivery failed",
	ErrParse:         "Invalid record",
	ErrConnect:       "Failed to connect",
	ErrExport:        "Failed to export log",
	ErrInvalidConfig: "Invalid configuration",
	ErrReadConfig:    "Failed to read configuration",
	ErrStorageInit:   "Failed to initialize storage",
	ErrStorageAccess: "Failed to access storage",
	ErrStorageClose:  "Failed to close storage",
}

// Message returns the default message for code.
func Message(code ErrorCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return string(code)
}
