package main

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDraft = `subject: Einladung zum Helfertreffen
body: "<p>{{Anrede}},</p><p>wir treffen uns am Freitag.</p><p>{{Gruss}}</p>{{Signatur}}"
fromName: Anna Schmidt
fromEmail: anna@repair-leonberg.de
role: Orga-Team
tags: [Team]
onlyMembers: true
attachments:
  - path: programm.txt
    contentType: text/plain
  - filename: inline.txt
    content: aGFsbG8=
`

func writeDraft(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "einladung.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDraft(t *testing.T) {
	t.Run("读取草稿和附件路径", func(t *testing.T) {
		path := writeDraft(t, sampleDraft)
		require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "programm.txt"), []byte("Ablauf"), 0o600))

		draft, err := loadDraft(path)
		require.NoError(t, err)

		req, err := draft.request([]string{"Vorstand"})
		require.NoError(t, err)

		assert.Equal(t, "Einladung zum Helfertreffen", req.Subject)
		assert.Equal(t, "Anna Schmidt", req.FromName)
		assert.Equal(t, "Orga-Team", req.Role)
		assert.Equal(t, []string{"Team", "Vorstand"}, req.Tags)
		assert.True(t, req.OnlyMembers)
		require.Len(t, req.Attachments, 2)

		assert.Equal(t, "programm.txt", req.Attachments[0].Filename, "路径附件默认使用文件名")
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("Ablauf")), req.Attachments[0].Content)
		assert.Equal(t, "text/plain", req.Attachments[0].ContentType)

		assert.Equal(t, "inline.txt", req.Attachments[1].Filename)
		assert.Equal(t, "aGFsbG8=", req.Attachments[1].Content)
	})

	t.Run("附件文件不存在失败", func(t *testing.T) {
		path := writeDraft(t, sampleDraft)

		draft, err := loadDraft(path)
		require.NoError(t, err)

		_, err = draft.request(nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "read attachment")
	})

	t.Run("无效的 YAML 失败", func(t *testing.T) {
		path := writeDraft(t, "subject: [unclosed")

		_, err := loadDraft(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "parse draft")
	})

	t.Run("不会修改草稿自带的标签", func(t *testing.T) {
		path := writeDraft(t, "subject: Hallo\ntags: [Team]\n")

		draft, err := loadDraft(path)
		require.NoError(t, err)

		_, err = draft.request([]string{"Vorstand"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Team"}, draft.Tags)
	})
}
