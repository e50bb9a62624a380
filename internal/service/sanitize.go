package service

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"repaircafe/backend/internal/domain"
)

// sanitizeInput 去掉首尾空白，统一为 NFC 后按字符数截断
func sanitizeInput(value string, maxRunes int) string {
	value = norm.NFC.String(strings.TrimSpace(value))
	if maxRunes > 0 {
		value = domain.Truncate(value, maxRunes)
	}
	return value
}
