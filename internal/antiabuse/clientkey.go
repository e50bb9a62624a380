package antiabuse

import (
	"net/http"
	"strings"
)

// AnonymousKey 无法识别客户端时的共享标识
const AnonymousKey = "anonymous"

// ClientKey 依次取 X-Forwarded-For 第一跳、X-Real-IP、CF-Connecting-IP。
// 这些头可以被伪造，只用于抵挡随手的滥用。
func ClientKey(h http.Header) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(h.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return AnonymousKey
}
