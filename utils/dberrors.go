package utils

import "strings"

// IsUniqueViolation reports a unique index failure from either postgres or
// sqlite when the driver did not translate it to gorm.ErrDuplicatedKey.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
