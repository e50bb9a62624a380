package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/middleware"
)

// 传输层自己的提示文本（业务提示见 domain.Msg*）
const (
	MsgMissingID         = "Parameter id fehlt."
	MsgBodyTooLarge      = "Die Anfrage ist zu groß."
	MsgGuestbookAccepted = "Vielen Dank! Ihr Eintrag wurde gespeichert und wird nach kurzer Prüfung sichtbar."
)

// errorResponse 错误响应体。
// 联系表单和群发页面读取 error，留言簿页面读取 success/message。
type errorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Debug   string            `json:"debug,omitempty"`
}

// statusFor 错误类别 -> HTTP 状态码
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindAuthentication:
		return http.StatusBadRequest
	case domain.KindTooShort:
		return http.StatusUnprocessableEntity
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	case domain.KindConfiguration:
		return http.StatusServiceUnavailable
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorWriter 把业务错误写成 JSON 响应
type errorWriter struct {
	debug  bool
	logger *zap.Logger
}

// write 写出错误。debug 打开时附带字段说明和底层原因
func (w errorWriter) write(c *gin.Context, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.NewInternalError(domain.MsgInternal, err)
	}

	status := statusFor(de.Kind)
	if status >= http.StatusInternalServerError {
		w.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(de.Kind)),
			zap.Error(err),
		)
	} else {
		w.logger.Debug("Request rejected",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(de.Kind)),
			zap.Error(err),
		)
	}

	resp := errorResponse{Error: de.Message, Message: de.Message}
	if w.debug {
		resp.Details = de.Details
		if de.Err != nil {
			resp.Debug = de.Err.Error()
		}
	} else if de.Kind == domain.KindValidation {
		// 校验错误始终返回字段说明
		resp.Details = de.Details
	}

	c.AbortWithStatusJSON(status, resp)
}

// bindError 请求体解析失败
func (w errorWriter) bindError(c *gin.Context, err error) {
	if middleware.IsBodyTooLarge(err) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{Error: MsgBodyTooLarge, Message: MsgBodyTooLarge})
		return
	}
	w.write(c, domain.NewValidationError(domain.MsgInvalidPayload, nil))
}
