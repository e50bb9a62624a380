package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// SmallBodyLimit 公开表单
	SmallBodyLimit = 64 * 1024
	// DefaultBodyLimit 会员目录等普通 API
	DefaultBodyLimit = 1 * 1024 * 1024
)

// SendBodyLimit 由附件上限推算群发请求的大小上限（base64 膨胀约 4/3，另加正文余量）
func SendBodyLimit(maxAttachmentBytes int64) int64 {
	return maxAttachmentBytes/3*4 + 4*1024*1024
}

// BodySizeLimit 限制请求体大小的中间件
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("Die Anfrage ist zu groß (maximal %d Bytes).", maxBytes),
				"limit": maxBytes,
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))

		c.Next()
	}
}

// IsBodyTooLarge 判断解码错误是否由请求体超限引起
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
