package mailmerge

import (
	"regexp"
	"strings"
)

var (
	lineBreakRe  = regexp.MustCompile(`(?i)<br\s*/?>`)
	paraCloseRe  = regexp.MustCompile(`(?i)</p>`)
	paraOpenRe   = regexp.MustCompile(`(?i)<p[^>]*>`)
	anyTagRe     = regexp.MustCompile(`<[^>]+>`)
	entityDecode = strings.NewReplacer("&nbsp;", " ", "&amp;", "&")
)

// ToPlainText 把富文本投影为纯文本：
// 换行标签变成一个换行，段落结束变成两个换行，其余标签删除，
// 只解码 &nbsp; 和 &amp; 两个实体。结果不做首尾裁剪。
func ToPlainText(html string) string {
	s := lineBreakRe.ReplaceAllString(html, "\n")
	s = paraCloseRe.ReplaceAllString(s, "\n\n")
	s = paraOpenRe.ReplaceAllString(s, "")
	s = anyTagRe.ReplaceAllString(s, "")
	return entityDecode.Replace(s)
}

// IsBlank 去掉标签后只剩空白时返回 true
func IsBlank(html string) bool {
	return strings.TrimSpace(ToPlainText(html)) == ""
}
