package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected bool
	}{
		{"Valid email", "test@example.com", true},
		{"Valid email with subdomain", "user@mail.example.com", true},
		{"Valid email with numbers", "user123@example.com", true},
		{"Valid email with dots", "user.name@example.com", true},
		{"Valid email with plus", "user+tag@example.com", true},
		{"Valid short local part", "a@repair-leonberg.de", true},
		{"Invalid email - no @", "testexample.com", false},
		{"Invalid email - no domain", "test@", false},
		{"Invalid email - no local part", "@example.com", false},
		{"Invalid email - multiple @", "test@@example.com", false},
		{"Invalid email - empty", "", false},
		{"Invalid email - spaces", "test @example.com", false},
		{"Invalid email - invalid characters", "test$@example.com", false},
		{"Invalid email - no TLD", "test@localhost", false},
		{"Invalid email - display name", "Max <max@example.com>", false},
		{"Invalid email - double dots", "max..muster@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateEmail(tt.email)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEmailValidator_Errors(t *testing.T) {
	v := NewEmailValidator()

	assert.ErrorIs(t, v.ValidateEmail(strings.Repeat("a", 250)+"@example.com"), ErrEmailTooLong)
	assert.ErrorIs(t, v.ValidateLocalPart(strings.Repeat("a", 65)), ErrLocalPartTooLong)
	assert.ErrorIs(t, v.ValidateDomain("example"), ErrInvalidDomain)
	assert.NoError(t, v.ValidateDomain("repair-leonberg.de"))
}

func TestValidateSubject(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		expected bool
	}{
		{"Valid subject", "Update", true},
		{"Valid subject with umlauts", "Einladung zum Repair Café – März", true},
		{"Invalid - empty", "", false},
		{"Invalid - only spaces", "   ", false},
		{"Invalid - too long", strings.Repeat("x", 256), false},
		{"Invalid - control characters", "Subject\nwith\nnewlines", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSubject(tt.subject))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Grü", Truncate("Grüße", 3))
	assert.Equal(t, "kurz", Truncate("kurz", 10))
	assert.Equal(t, 5, RuneLen("Grüße"))
}

func TestMemberInput(t *testing.T) {
	t.Run("规范化去除空白和空标签", func(t *testing.T) {
		in := MemberInput{FirstName: " Max ", LastName: "Muster ", Email: " max@example.com", Tags: []string{" vorstand ", "", "  "}}
		in.Normalize()

		assert.Equal(t, "Max", in.FirstName)
		assert.Equal(t, "Muster", in.LastName)
		assert.Equal(t, "max@example.com", in.Email)
		assert.Equal(t, []string{"vorstand"}, in.Tags)
		assert.NoError(t, in.Validate())
	})

	t.Run("缺少姓名返回校验错误", func(t *testing.T) {
		in := MemberInput{Email: "kaputt"}
		err := in.Validate()

		assert.True(t, IsKind(err, KindValidation))
		var de *Error
		assert.ErrorAs(t, err, &de)
		assert.Equal(t, "required", de.Details["firstName"])
		assert.Equal(t, "invalid", de.Details["email"])
	})

	t.Run("没有邮箱的成员是合法记录但不可发送", func(t *testing.T) {
		in := MemberInput{FirstName: "Erika", LastName: "Muster"}
		assert.NoError(t, in.Validate())

		m := &Member{}
		in.Apply(m)
		assert.False(t, m.Sendable())
	})
}

func TestMemberFilter(t *testing.T) {
	m := &Member{ID: "1", IsMember: true, Tags: []string{"Vorstand", "Helfer"}}

	assert.True(t, MemberFilter{}.Match(m))
	assert.True(t, MemberFilter{Tags: []string{"helfer"}}.Match(m))
	assert.False(t, MemberFilter{Tags: []string{"presse"}}.Match(m))
	assert.True(t, MemberFilter{IDs: []string{"2", "1"}}.Match(m))
	assert.False(t, MemberFilter{IDs: []string{"2"}}.Match(m))
	assert.False(t, MemberFilter{OnlyMembers: true}.Match(&Member{ID: "3"}))
}

func TestDeliveryReport(t *testing.T) {
	r := &DeliveryReport{
		Outcomes: []DeliveryOutcome{
			{RecipientID: "1", To: "a@example.com", MessageID: "<1@x>"},
			{RecipientID: "2", To: "b@example.com", Error: "boom"},
		},
		Succeeded: 1,
	}

	assert.Len(t, r.Results(), 1)
	assert.Len(t, r.Failed(), 1)
	assert.False(t, r.AllFailed())
	assert.False(t, (&DeliveryReport{}).AllFailed())
}

func TestDraft(t *testing.T) {
	d := &Draft{FromEmail: "info@repair-leonberg.de"}
	assert.Equal(t, "info@repair-leonberg.de", d.EffectiveReplyTo())
	assert.Equal(t, DefaultOrgLine, d.Sender().OrgLine)

	d.ReplyTo = "vorstand@repair-leonberg.de"
	assert.Equal(t, "vorstand@repair-leonberg.de", d.EffectiveReplyTo())
}
