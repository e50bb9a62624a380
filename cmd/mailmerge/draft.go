package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/service"
)

// draftFile 草稿文件，附件可以内联 base64 或引用相对于草稿文件的路径
type draftFile struct {
	domain.Draft `yaml:",inline"`
	JobID        string            `yaml:"jobId"`
	Tags         []string          `yaml:"tags"`
	MemberIDs    []string          `yaml:"memberIds"`
	OnlyMembers  bool              `yaml:"onlyMembers"`
	Attachments  []draftAttachment `yaml:"attachments"`

	dir string
}

type draftAttachment struct {
	Filename    string `yaml:"filename"`
	Path        string `yaml:"path"`
	Content     string `yaml:"content"`
	ContentType string `yaml:"contentType"`
}

func loadDraft(path string) (*draftFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}

	var d draftFile
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse draft %s: %w", path, err)
	}
	d.dir = filepath.Dir(path)
	return &d, nil
}

// request 把草稿转换成发送请求，extraTags 追加到草稿自带的标签
func (d *draftFile) request(extraTags []string) (*service.SendRequest, error) {
	req := &service.SendRequest{
		JobID:       d.JobID,
		FromName:    d.FromName,
		FromEmail:   d.FromEmail,
		ReplyTo:     d.ReplyTo,
		Role:        d.Role,
		OrgLine:     d.OrgLine,
		Subject:     d.Subject,
		Body:        d.Body,
		MemberIDs:   d.MemberIDs,
		Tags:        append(append([]string(nil), d.Tags...), extraTags...),
		OnlyMembers: d.OnlyMembers,
	}

	for _, att := range d.Attachments {
		enc, err := d.encode(att)
		if err != nil {
			return nil, err
		}
		req.Attachments = append(req.Attachments, enc)
	}
	return req, nil
}

func (d *draftFile) encode(att draftAttachment) (domain.EncodedAttachment, error) {
	enc := domain.EncodedAttachment{
		Filename:    att.Filename,
		Content:     strings.TrimSpace(att.Content),
		ContentType: att.ContentType,
	}
	if att.Path == "" {
		return enc, nil
	}

	path := att.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return enc, fmt.Errorf("read attachment: %w", err)
	}
	enc.Content = base64.StdEncoding.EncodeToString(data)
	if enc.Filename == "" {
		enc.Filename = filepath.Base(path)
	}
	return enc, nil
}
