package domain

import (
	"strings"
	"time"
)

// Member 表示成员目录中的一条记录。
type Member struct {
	ID        string    `json:"id" yaml:"id" gorm:"primaryKey;type:varchar(36)"`
	FirstName string    `json:"firstName" yaml:"firstName" gorm:"type:varchar(120);not null"`
	LastName  string    `json:"lastName" yaml:"lastName" gorm:"type:varchar(120);not null"`
	Email     string    `json:"email,omitempty" yaml:"email" gorm:"type:varchar(254);index"` // 可为空，空邮箱不参与发送
	IsMember  bool      `json:"isMember" yaml:"isMember" gorm:"default:false"`
	Tags      []string  `json:"tags" yaml:"tags" gorm:"serializer:json"`
	Greeting  string    `json:"greeting,omitempty" yaml:"greeting" gorm:"type:varchar(255)"` // 个性化称呼，空串视为未设置
	Closing   string    `json:"closing,omitempty" yaml:"closing" gorm:"type:varchar(255)"`   // 个性化结束语，空串视为未设置
	Note      string    `json:"note,omitempty" yaml:"note" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// FullName 返回"名 姓"形式的显示名
func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// Sendable 没有邮箱的成员不会成为发送目标
func (m *Member) Sendable() bool {
	return strings.TrimSpace(m.Email) != ""
}

// HasTag 判断成员是否带有指定标签（忽略大小写）
func (m *Member) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// MemberFilter 成员筛选条件，字段之间为"与"关系
type MemberFilter struct {
	IDs         []string
	Tags        []string // 任一标签匹配即可
	OnlyMembers bool
}

// Match 判断成员是否满足筛选条件
func (f MemberFilter) Match(m *Member) bool {
	if f.OnlyMembers && !m.IsMember {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == m.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Tags) > 0 {
		for _, tag := range f.Tags {
			if m.HasTag(tag) {
				return true
			}
		}
		return false
	}
	return true
}

// MemberInput 创建或替换成员时的请求体
type MemberInput struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Email     string   `json:"email"`
	IsMember  bool     `json:"isMember"`
	Tags      []string `json:"tags"`
	Greeting  string   `json:"greeting"`
	Closing   string   `json:"closing"`
	Note      string   `json:"note"`
}

// Normalize 去除首尾空白并丢弃空标签
func (in *MemberInput) Normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.Greeting = strings.TrimSpace(in.Greeting)
	in.Closing = strings.TrimSpace(in.Closing)
	in.Note = strings.TrimSpace(in.Note)

	tags := make([]string, 0, len(in.Tags))
	for _, tag := range in.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	in.Tags = tags
}

// Validate 校验成员输入
func (in *MemberInput) Validate() error {
	details := map[string]string{}
	if in.FirstName == "" {
		details["firstName"] = "required"
	}
	if in.LastName == "" {
		details["lastName"] = "required"
	}
	if in.Email != "" && !ValidateEmail(in.Email) {
		details["email"] = "invalid"
	}
	if len(details) > 0 {
		return NewValidationError(MsgMemberInvalid, details)
	}
	return nil
}

// Apply 把输入写入成员记录（整条替换语义）
func (in *MemberInput) Apply(m *Member) {
	m.FirstName = in.FirstName
	m.LastName = in.LastName
	m.Email = in.Email
	m.IsMember = in.IsMember
	m.Tags = in.Tags
	m.Greeting = in.Greeting
	m.Closing = in.Closing
	m.Note = in.Note
}
