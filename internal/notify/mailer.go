// Package notify はSMTPによるメール通知を提供する。
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/mail.v2"

	"github.com/hitoshi/bijou/internal/model"
)

// Sender はメッセージの送信を抽象化する。*mail.Dialer が実装する。
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

// Config はSMTP接続の設定。
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Mailer は確認コードや注文・返品の通知メールを送信する。
type Mailer struct {
	sender Sender
	from   string
}

// NewMailer はSMTPダイアラーを使うMailerを生成する。
func NewMailer(cfg Config) *Mailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = cfg.Timeout
	if d.Timeout == 0 {
		d.Timeout = 20 * time.Second
	}
	d.StartTLSPolicy = mail.OpportunisticStartTLS
	return NewMailerWithSender(d, cfg.From)
}

// NewMailerWithSender は任意のSenderを使うMailerを生成する。
func NewMailerWithSender(sender Sender, from string) *Mailer {
	return &Mailer{sender: sender, from: from}
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	slog.Info("mail sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

// SendVerificationCode はパスワード変更用の確認コードを送信する。
func (m *Mailer) SendVerificationCode(ctx context.Context, to, name, code string, ttl time.Duration) error {
	body := fmt.Sprintf(
		"Merhaba %s,\n\nŞifre değiştirme doğrulama kodunuz: %s\n\nBu kod %d dakika geçerlidir. "+
			"Bu isteği siz yapmadıysanız bu e-postayı dikkate almayın.\n\nBijou",
		name, code, int(ttl.Minutes()),
	)
	return m.send(ctx, to, "Bijou şifre değiştirme kodu", body)
}

// SendOrderConfirmation は注文確定メールを送信する。
func (m *Mailer) SendOrderConfirmation(ctx context.Context, to, name string, order *model.Order) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Merhaba %s,\n\nSiparişiniz alındı.\nSipariş numarası: %s\n\n", name, order.ID)
	for _, it := range order.Items {
		fmt.Fprintf(&b, "- %s x%d  %s TL\n", it.Name, it.Quantity, it.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nToplam: %s TL\n\nBijou", order.TotalPrice.StringFixed(2))
	return m.send(ctx, to, "Bijou sipariş onayı", b.String())
}

// SendReturnStatus は返品申請の状態変更を通知する。
func (m *Mailer) SendReturnStatus(ctx context.Context, to, name string, rr *model.ReturnRequest) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Merhaba %s,\n\n%s numaralı iade talebinizin durumu: %s\n", name, rr.ID, returnStatusLabel(rr.Status))
	switch rr.Status {
	case model.ReturnStatusApproved:
		fmt.Fprintf(&b, "\nÜrünleri aşağıdaki adrese gönderebilirsiniz:\n%s\n", rr.ReturnAddress)
	case model.ReturnStatusRefunded:
		fmt.Fprintf(&b, "\nİade tutarı: %s TL\n", rr.RefundAmount.StringFixed(2))
	}
	if rr.AdminNotes != "" {
		fmt.Fprintf(&b, "\nNot: %s\n", rr.AdminNotes)
	}
	b.WriteString("\nBijou")
	return m.send(ctx, to, "Bijou iade talebi güncellendi", b.String())
}

func returnStatusLabel(s model.ReturnStatus) string {
	switch s {
	case model.ReturnStatusPending:
		return "inceleniyor"
	case model.ReturnStatusApproved:
		return "onaylandı"
	case model.ReturnStatusRejected:
		return "reddedildi"
	case model.ReturnStatusRefunded:
		return "ücret iadesi yapıldı"
	case model.ReturnStatusCancelled:
		return "iptal edildi"
	}
	return string(s)
}

// Disabled はSMTP未設定時に使うMailer。送信せず警告ログのみ出力する。
type Disabled struct{}

func (Disabled) SendVerificationCode(_ context.Context, to, _, _ string, _ time.Duration) error {
	slog.Warn("mail disabled, verification code not sent", slog.String("to", to))
	return nil
}

func (Disabled) SendOrderConfirmation(_ context.Context, to, _ string, order *model.Order) error {
	slog.Warn("mail disabled, order confirmation not sent",
		slog.String("to", to), slog.String("order_id", order.ID))
	return nil
}

func (Disabled) SendReturnStatus(_ context.Context, to, _ string, rr *model.ReturnRequest) error {
	slog.Warn("mail disabled, return status not sent",
		slog.String("to", to), slog.String("return_id", rr.ID))
	return nil
}
