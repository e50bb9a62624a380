package domain

// OutboundMessage 每个收件人一封，生成后在本次发送中不再修改
type OutboundMessage struct {
	RecipientID    string `json:"id"`
	RecipientEmail string `json:"email"`
	RecipientName  string `json:"name"`
	Text           string `json:"messageText"`
	HTML           string `json:"messageHtml"`
}

// DeliveryOutcome 单个收件人的发送结果
type DeliveryOutcome struct {
	RecipientID string `json:"id"`
	To          string `json:"to"`
	MessageID   string `json:"messageId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Succeeded 是否发送成功
func (o DeliveryOutcome) Succeeded() bool {
	return o.Error == ""
}

// DeliveryReport 一个批次的完整发送记录，顺序与输入一致
type DeliveryReport struct {
	Outcomes  []DeliveryOutcome `json:"outcomes"`
	Succeeded int               `json:"succeeded"`
}

// Results 成功的结果
func (r *DeliveryReport) Results() []DeliveryOutcome {
	out := make([]DeliveryOutcome, 0, r.Succeeded)
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// Failed 失败的结果
func (r *DeliveryReport) Failed() []DeliveryOutcome {
	out := make([]DeliveryOutcome, 0, len(r.Outcomes)-r.Succeeded)
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// AllFailed 全部失败时返回 true（空报告不算）
func (r *DeliveryReport) AllFailed() bool {
	return len(r.Outcomes) > 0 && r.Succeeded == 0
}
