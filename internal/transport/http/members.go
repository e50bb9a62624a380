package httptransport

import (
	"strings"

	"github.com/gin-gonic/gin"

	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/service"
)

// MemberHandler 会员区接口：成员目录与群发
type MemberHandler struct {
	members *service.MemberService
	mailing *service.MailingService
	errors  errorWriter
}

// NewMemberHandler 创建会员区处理器
func NewMemberHandler(members *service.MemberService, mailing *service.MailingService, errors errorWriter) *MemberHandler {
	return &MemberHandler{members: members, mailing: mailing, errors: errors}
}

// memberRequest 创建或替换成员，isMember 缺省为 true
type memberRequest struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Email     string   `json:"email"`
	IsMember  *bool    `json:"isMember"`
	Tags      []string `json:"tags"`
	Greeting  string   `json:"greeting"`
	Closing   string   `json:"closing"`
	Note      string   `json:"note"`
}

func (r memberRequest) input() domain.MemberInput {
	isMember := true
	if r.IsMember != nil {
		isMember = *r.IsMember
	}
	return domain.MemberInput{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		IsMember:  isMember,
		Tags:      r.Tags,
		Greeting:  r.Greeting,
		Closing:   r.Closing,
		Note:      r.Note,
	}
}

type deleteResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type sendResponse struct {
	Message string                   `json:"message"`
	JobID   string                   `json:"jobId"`
	Results []domain.DeliveryOutcome `json:"results"`
	Failed  []domain.DeliveryOutcome `json:"failed"`
}

// ListMembers godoc
// @Summary 成员列表
// @Tags Members
// @Produce json
// @Param tag query string false "按标签筛选，可重复"
// @Param onlyMembers query bool false "只返回正式成员"
// @Success 200 {array} domain.Member
// @Router /members/api/contacts [get]
func (h *MemberHandler) ListMembers(c *gin.Context) {
	filter := domain.MemberFilter{
		Tags:        c.QueryArray("tag"),
		OnlyMembers: c.Query("onlyMembers") == "true",
	}

	members, err := h.members.List(c.Request.Context(), filter)
	if err != nil {
		h.errors.write(c, err)
		return
	}
	Success(c, members)
}

// CreateMember godoc
// @Summary 新增成员
// @Tags Members
// @Accept json
// @Produce json
// @Success 201 {object} domain.Member
// @Failure 400 {object} errorResponse
// @Router /members/api/contacts [post]
func (h *MemberHandler) CreateMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.bindError(c, err)
		return
	}

	member, err := h.members.Create(c.Request.Context(), req.input())
	if err != nil {
		h.errors.write(c, err)
		return
	}
	Created(c, member)
}

// ReplaceMember godoc
// @Summary 整条替换成员
// @Tags Members
// @Accept json
// @Produce json
// @Param id query string true "成员ID"
// @Success 200 {object} domain.Member
// @Failure 404 {object} errorResponse
// @Router /members/api/contacts [put]
func (h *MemberHandler) ReplaceMember(c *gin.Context) {
	id, ok := h.requireID(c)
	if !ok {
		return
	}

	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.bindError(c, err)
		return
	}

	member, err := h.members.Replace(c.Request.Context(), id, req.input())
	if err != nil {
		h.errors.write(c, err)
		return
	}
	Success(c, member)
}

// DeleteMember godoc
// @Summary 删除成员
// @Tags Members
// @Produce json
// @Param id query string true "成员ID"
// @Success 200 {object} deleteResponse
// @Failure 404 {object} errorResponse
// @Router /members/api/contacts [delete]
func (h *MemberHandler) DeleteMember(c *gin.Context) {
	id, ok := h.requireID(c)
	if !ok {
		return
	}

	if err := h.members.Delete(c.Request.Context(), id); err != nil {
		h.errors.write(c, err)
		return
	}
	Success(c, deleteResponse{Success: true, ID: id})
}

// Send godoc
// @Summary 群发邮件
// @Description 调用方可以直接提交渲染好的收件人，也可以只提交正文和筛选条件由服务端渲染
// @Tags Members
// @Accept json
// @Produce json
// @Success 200 {object} sendResponse
// @Failure 400 {object} errorResponse
// @Failure 500 {object} errorResponse
// @Router /members/api/send [post]
func (h *MemberHandler) Send(c *gin.Context) {
	var req service.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.bindError(c, err)
		return
	}

	result, err := h.mailing.Send(c.Request.Context(), &req)
	if err != nil {
		h.errors.write(c, err)
		return
	}

	Success(c, sendResponse{
		Message: result.Message(),
		JobID:   result.JobID,
		Results: result.Report.Results(),
		Failed:  result.Report.Failed(),
	})
}

// Preview 渲染但不发送，供页面预览
func (h *MemberHandler) Preview(c *gin.Context) {
	var req service.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.bindError(c, err)
		return
	}

	messages, err := h.mailing.Render(c.Request.Context(), &req)
	if err != nil {
		h.errors.write(c, err)
		return
	}
	Success(c, messages)
}

// Area 会员区入口探测，通过 Basic Auth 后返回目录概况
func (h *MemberHandler) Area(c *gin.Context) {
	Success(c, gin.H{
		"authenticated":     true,
		"mailingConfigured": h.mailing.Configured(),
	})
}

func (h *MemberHandler) requireID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		h.errors.write(c, domain.NewValidationError(MsgMissingID, map[string]string{"id": "required"}))
		return "", false
	}
	return id, true
}
