package domain

// Attachment 解码后的附件，同一批次内所有收件人共享
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"-"`
}

// Size 附件字节数
func (a *Attachment) Size() int64 {
	return int64(len(a.Content))
}

// EncodedAttachment 边界上的 base64 附件
type EncodedAttachment struct {
	Filename    string `json:"filename" yaml:"filename"`
	Content     string `json:"content" yaml:"content"`
	ContentType string `json:"contentType,omitempty" yaml:"contentType"`
}
