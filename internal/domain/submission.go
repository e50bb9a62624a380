package domain

import "time"

// NonceToken 客户端回传的 nonce 三元组，服务端不保存
type NonceToken struct {
	Nonce     string `json:"nonce"`
	IssuedAt  int64  `json:"issuedAt"` // unix 毫秒
	Signature string `json:"signature"`
}

// Complete 三个字段是否都存在
func (t NonceToken) Complete() bool {
	return t.Nonce != "" && t.IssuedAt != 0 && t.Signature != ""
}

// Submission 公开表单提交时携带的防滥用字段
type Submission struct {
	NonceToken
	Honeypot    string `json:"honeypot"`
	SubmittedAt int64  `json:"submittedAt"` // 表单加载时间，unix 毫秒
	Fingerprint string `json:"-"`           // 来自请求的 User-Agent
	ClientKey   string `json:"-"`
}

// ContactMessage 联系表单
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
	Copy    bool   `json:"copy"`
}

// GuestbookEntry 留言簿条目，新条目默认未审核
type GuestbookEntry struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name" gorm:"type:varchar(80);not null"`
	Message   string    `json:"message" gorm:"type:varchar(600);not null"`
	City      string    `json:"city,omitempty" gorm:"type:varchar(80)"`
	Approved  bool      `json:"approved" gorm:"default:false;index"`
	CreatedAt time.Time `json:"createdAt"`
}

// 留言簿字段限制
const (
	GuestbookNameMin    = 2
	GuestbookMessageMin = 10
	GuestbookNameMax    = 80
	GuestbookMessageMax = 600
	GuestbookCityMax    = 80
)
