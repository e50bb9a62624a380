package mailmerge

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"repaircafe/backend/internal/domain"
)

// DefaultContentType 未声明类型时使用
const DefaultContentType = "application/octet-stream"

var (
	// ErrInvalidEncoding 附件内容不是合法的 base64
	ErrInvalidEncoding = errors.New("attachment content is not valid base64")
	// ErrAttachmentTooLarge 附件总大小超出限制
	ErrAttachmentTooLarge = errors.New("attachments exceed size limit")
)

// DecodeAttachment 解码单个附件，允许浏览器 FileReader 产生的 data: 前缀
func DecodeAttachment(enc domain.EncodedAttachment) (domain.Attachment, error) {
	payload := strings.TrimSpace(enc.Content)
	contentType := strings.TrimSpace(enc.ContentType)

	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 || !strings.HasSuffix(payload[:idx], ";base64") {
			return domain.Attachment{}, fmt.Errorf("%s: %w", enc.Filename, ErrInvalidEncoding)
		}
		if contentType == "" {
			contentType = strings.TrimSuffix(strings.TrimPrefix(payload[:idx], "data:"), ";base64")
		}
		payload = payload[idx+1:]
	}

	content, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("%s: %w", enc.Filename, ErrInvalidEncoding)
	}

	if contentType == "" {
		contentType = DefaultContentType
	}

	filename := strings.TrimSpace(enc.Filename)
	if filename == "" {
		filename = "anhang"
	}

	return domain.Attachment{Filename: filename, ContentType: contentType, Content: content}, nil
}

// DecodeAttachments 每个批次只解码一次，maxBytes <= 0 表示不限制
func DecodeAttachments(encoded []domain.EncodedAttachment, maxBytes int64) ([]domain.Attachment, error) {
	out := make([]domain.Attachment, 0, len(encoded))
	var total int64
	for _, enc := range encoded {
		att, err := DecodeAttachment(enc)
		if err != nil {
			return nil, err
		}
		total += att.Size()
		if maxBytes > 0 && total > maxBytes {
			return nil, fmt.Errorf("%d bytes > %d: %w", total, maxBytes, ErrAttachmentTooLarge)
		}
		out = append(out, att)
	}
	return out, nil
}
