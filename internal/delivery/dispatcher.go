// Package delivery 逐个收件人发送个性化邮件并汇总结果。
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/mailmerge"
)

// DefaultSendTimeout 单次发送的超时
const DefaultSendTimeout = 30 * time.Second

// ErrSendTimeout 单次发送超时
var ErrSendTimeout = errors.New("send timed out")

// Options 发送器配置
type Options struct {
	FromAddress string // 信封发件地址
	FromName    string // 组织名，作为发件人显示名
	Bcc         string // 内部存档地址，可为空
	MailerTag   string
	Timeout     time.Duration
	Concurrency int // <=1 时严格顺序发送
}

// Dispatcher 发送编排器
type Dispatcher struct {
	transport Transport
	opts      Options
	logger    *zap.Logger
	validator *domain.EmailValidator
}

// NewDispatcher 创建发送编排器
func NewDispatcher(transport Transport, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSendTimeout
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.FromName == "" {
		opts.FromName = domain.DefaultOrgLine
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		transport: transport,
		opts:      opts,
		logger:    logger,
		validator: domain.NewEmailValidator(),
	}
}

// Validate 批次级前置检查，失败时不会发出任何邮件
func (d *Dispatcher) Validate(batch *Batch) error {
	details := map[string]string{}
	message := ""
	fail := func(field, reason, msg string) {
		details[field] = reason
		if message == "" {
			message = msg
		}
	}

	if d.validator.ValidateEmail(batch.Draft.FromEmail) != nil {
		fail("fromEmail", "invalid", domain.MsgSenderInvalid)
	}
	if d.validator.ValidateEmail(batch.Draft.EffectiveReplyTo()) != nil {
		fail("replyTo", "invalid", domain.MsgSenderInvalid)
	}
	if d.opts.FromAddress != "" && d.validator.ValidateEmail(d.opts.FromAddress) != nil {
		fail("from", "invalid", domain.MsgSenderInvalid)
	}
	if strings.TrimSpace(batch.Draft.Subject) == "" {
		fail("subject", "required", domain.MsgSubjectRequired)
	}

	// 正文检查取第一个有邮箱的收件人，与 Dispatch 的过滤一致
	var first *domain.OutboundMessage
	for i := range batch.Messages {
		if strings.TrimSpace(batch.Messages[i].RecipientEmail) != "" {
			first = &batch.Messages[i]
			break
		}
	}
	if first == nil {
		fail("recipients", "empty", domain.MsgNoRecipients)
	} else if mailmerge.IsBlank(first.HTML) && strings.TrimSpace(first.Text) == "" {
		fail("body", "empty", domain.MsgBodyRequired)
	}

	if len(details) > 0 {
		return domain.NewValidationError(message, details)
	}
	return nil
}

// Dispatch 校验后逐个发送。单个收件人失败不会中断批次，
// 报告顺序与输入一致，全部失败时同样返回完整报告。
func (d *Dispatcher) Dispatch(ctx context.Context, batch *Batch) (*domain.DeliveryReport, error) {
	if err := d.Validate(batch); err != nil {
		return nil, err
	}

	messages := make([]domain.OutboundMessage, 0, len(batch.Messages))
	for _, m := range batch.Messages {
		if strings.TrimSpace(m.RecipientEmail) != "" {
			messages = append(messages, m)
		}
	}

	total := len(messages)
	outcomes := make([]domain.DeliveryOutcome, total)

	var notifyMu sync.Mutex
	record := func(i int, outcome domain.DeliveryOutcome) {
		outcomes[i] = outcome
		if batch.Observer != nil {
			notifyMu.Lock()
			batch.Observer.OnOutcome(i, total, outcome)
			notifyMu.Unlock()
		}
	}

	start := time.Now()
	if d.opts.Concurrency <= 1 {
		for i := range messages {
			record(i, d.deliver(ctx, batch, &messages[i]))
		}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(d.opts.Concurrency)
		for i := range messages {
			i := i
			g.Go(func() error {
				record(i, d.deliver(ctx, batch, &messages[i]))
				return nil
			})
		}
		_ = g.Wait()
	}

	report := &domain.DeliveryReport{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Succeeded() {
			report.Succeeded++
		}
	}

	d.logger.Info("Mail batch dispatched",
		zap.Int("total", total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", total-report.Succeeded),
		zap.Int("attachments", len(batch.Attachments)),
		zap.Duration("duration", time.Since(start)),
	)

	return report, nil
}

// Envelope 为单个收件人构造信封
func (d *Dispatcher) Envelope(draft *domain.Draft, msg *domain.OutboundMessage, attachments []domain.Attachment) *Envelope {
	from := d.opts.FromAddress
	if from == "" {
		from = draft.FromEmail
	}
	replyTo := draft.EffectiveReplyTo()

	env := &Envelope{
		From:    Address{Name: d.opts.FromName, Email: from},
		To:      Address{Name: msg.RecipientName, Email: strings.TrimSpace(msg.RecipientEmail)},
		ReplyTo: replyTo,
		Subject: strings.TrimSpace(draft.Subject),
		Text:    msg.Text,
		HTML:    msg.HTML,
		Headers: map[string]string{
			HeaderMailer:     d.opts.MailerTag,
			HeaderReplyTo:    replyTo,
			HeaderMailerFrom: draft.FromName,
		},
		Attachments: attachments,
	}
	if env.Text == "" {
		env.Text = mailmerge.ToPlainText(msg.HTML)
	}
	if d.opts.Bcc != "" {
		env.Bcc = []string{d.opts.Bcc}
	}
	return env
}

func (d *Dispatcher) deliver(ctx context.Context, batch *Batch, msg *domain.OutboundMessage) domain.DeliveryOutcome {
	outcome := domain.DeliveryOutcome{RecipientID: msg.RecipientID, To: strings.TrimSpace(msg.RecipientEmail)}

	if err := ctx.Err(); err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	id, err := d.sendWithTimeout(ctx, d.Envelope(&batch.Draft, msg, batch.Attachments))
	if err != nil {
		outcome.Error = err.Error()
		d.logger.Warn("Mail delivery failed",
			zap.String("recipient_id", msg.RecipientID),
			zap.Error(err),
		)
		return outcome
	}

	outcome.MessageID = id
	d.logger.Debug("Mail delivered",
		zap.String("recipient_id", msg.RecipientID),
		zap.String("message_id", id),
	)
	return outcome
}

// sendWithTimeout 传输层不理会 ctx 时也能按时返回
func (d *Dispatcher) sendWithTimeout(ctx context.Context, env *Envelope) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("transport panic: %v", r)}
			}
		}()
		id, err := d.transport.Send(callCtx, env)
		done <- result{id: id, err: err}
	}()

	select {
	case r := <-done:
		return r.id, r.err
	case <-callCtx.Done():
		select {
		case r := <-done:
			return r.id, r.err
		default:
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w after %s", ErrSendTimeout, d.opts.Timeout)
		}
		return "", callCtx.Err()
	}
}
