package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"repaircafe/backend/internal/antiabuse"
	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/monitoring"
	"repaircafe/backend/internal/service"
)

// PublicHandler 公开表单接口
type PublicHandler struct {
	nonces        *antiabuse.NonceService
	contact       *service.ContactService
	guestbook     *service.GuestbookService
	metrics       *monitoring.Metrics
	errors        errorWriter
	contactErrors errorWriter
}

// NewPublicHandler 创建公开接口处理器
func NewPublicHandler(nonces *antiabuse.NonceService, contact *service.ContactService, guestbook *service.GuestbookService, metrics *monitoring.Metrics, errors, contactErrors errorWriter) *PublicHandler {
	return &PublicHandler{
		nonces:        nonces,
		contact:       contact,
		guestbook:     guestbook,
		metrics:       metrics,
		errors:        errors,
		contactErrors: contactErrors,
	}
}

// submissionFields 两个表单共用的防滥用字段。
// 联系表单的蜜罐字段叫 company，留言簿叫 honeypot。
type submissionFields struct {
	domain.NonceToken
	Honeypot    string `json:"honeypot"`
	Company     string `json:"company"`
	SubmittedAt int64  `json:"submittedAt"`
}

func (f submissionFields) submission(c *gin.Context) domain.Submission {
	honeypot := f.Honeypot
	if honeypot == "" {
		honeypot = f.Company
	}
	return domain.Submission{
		NonceToken:  f.NonceToken,
		Honeypot:    honeypot,
		SubmittedAt: f.SubmittedAt,
		Fingerprint: c.Request.UserAgent(),
		ClientKey:   antiabuse.ClientKey(c.Request.Header),
	}
}

type contactRequest struct {
	submissionFields
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
	Copy    bool   `json:"copy"`
}

type guestbookRequest struct {
	submissionFields
	Name    string `json:"name"`
	Message string `json:"message"`
	City    string `json:"city"`
}

type guestbookListResponse struct {
	Items []*domain.GuestbookEntry `json:"items"`
	Count int                      `json:"count"`
}

// IssueNonce godoc
// @Summary 签发表单 nonce
// @Tags Public
// @Produce json
// @Success 200 {object} antiabuse.IssuedNonce
// @Router /api/nonce [get]
func (h *PublicHandler) IssueNonce(c *gin.Context) {
	issued, err := h.nonces.Issue(c.Request.UserAgent())
	if err != nil {
		h.errors.write(c, domain.NewInternalError(domain.MsgInternal, err))
		return
	}
	if h.metrics != nil {
		h.metrics.RecordNonceIssued()
	}

	c.Header("Cache-Control", "no-store")
	Success(c, issued)
}

// SubmitContact godoc
// @Summary 联系表单
// @Tags Public
// @Accept json
// @Produce json
// @Success 200 {object} successResponse
// @Failure 400 {object} errorResponse
// @Failure 429 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /api/contact [post]
func (h *PublicHandler) SubmitContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.record("contact", domain.NewValidationError(domain.MsgInvalidPayload, nil))
		h.contactErrors.bindError(c, err)
		return
	}

	err := h.contact.Submit(c.Request.Context(), req.submission(c), domain.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
		Copy:    req.Copy,
	})
	h.record("contact", err)
	if err != nil {
		h.contactErrors.write(c, err)
		return
	}

	Success(c, successResponse{Success: true})
}

// SubmitGuestbook godoc
// @Summary 留言簿提交
// @Tags Public
// @Accept json
// @Produce json
// @Success 201 {object} successResponse
// @Failure 400 {object} errorResponse
// @Failure 422 {object} errorResponse
// @Failure 429 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /api/guestbook [post]
func (h *PublicHandler) SubmitGuestbook(c *gin.Context) {
	var req guestbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.record("guestbook", domain.NewValidationError(domain.MsgInvalidPayload, nil))
		h.errors.bindError(c, err)
		return
	}

	entry, err := h.guestbook.Submit(c.Request.Context(), req.submission(c), service.GuestbookInput{
		Name:    req.Name,
		Message: req.Message,
		City:    req.City,
	})
	h.record("guestbook", err)
	if err != nil {
		h.errors.write(c, err)
		return
	}

	Created(c, successResponse{Success: true, Message: MsgGuestbookAccepted, ID: entry.ID})
}

// ListGuestbook 已审核的留言
func (h *PublicHandler) ListGuestbook(c *gin.Context) {
	entries, err := h.guestbook.Approved(c.Request.Context())
	if err != nil {
		h.errors.write(c, err)
		return
	}
	Success(c, guestbookListResponse{Items: entries, Count: len(entries)})
}

// Options 预检请求
func (h *PublicHandler) Options(c *gin.Context) {
	c.Header("Allow", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Status(http.StatusNoContent)
}

func (h *PublicHandler) record(endpoint string, err error) {
	if h.metrics != nil {
		h.metrics.RecordSubmission(endpoint, err)
	}
}
