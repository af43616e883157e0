package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/mail.v2"

	"github.com/hitoshi/bijou/internal/model"
)

// --- モック ---

type mockSender struct {
	sent []*mail.Message
	err  error
}

func (m *mockSender) DialAndSend(msgs ...*mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msgs...)
	return nil
}

func render(t *testing.T, msg *mail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("failed to render message: %v", err)
	}
	return buf.String()
}

// --- テスト ---

func TestMailer_SendVerificationCode(t *testing.T) {
	sender := &mockSender{}
	m := NewMailerWithSender(sender, "no-reply@bijou.example")

	if err := m.SendVerificationCode(context.Background(), "ayse@example.com", "Ayşe", "482913", 10*time.Minute); err != nil {
		t.Fatalf("SendVerificationCode() error = %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}

	msg := sender.sent[0]
	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "ayse@example.com" {
		t.Errorf("To = %v", got)
	}
	if got := msg.GetHeader("From"); len(got) != 1 || got[0] != "no-reply@bijou.example" {
		t.Errorf("From = %v", got)
	}
	body := render(t, msg)
	if !strings.Contains(body, "482913") {
		t.Error("body should contain the code")
	}
	if !strings.Contains(body, "10 dakika") {
		t.Error("body should mention the TTL in minutes")
	}
}

func TestMailer_SendOrderConfirmation_ListsItems(t *testing.T) {
	sender := &mockSender{}
	m := NewMailerWithSender(sender, "no-reply@bijou.example")

	order := &model.Order{
		ID: "order-1",
		Items: []model.OrderItem{
			{Name: "Gümüş Yüzük", Price: decimal.NewFromInt(100), Quantity: 2},
		},
		TotalPrice: decimal.RequireFromString("236.5"),
	}
	if err := m.SendOrderConfirmation(context.Background(), "a@example.com", "Ali", order); err != nil {
		t.Fatalf("SendOrderConfirmation() error = %v", err)
	}

	body := render(t, sender.sent[0])
	for _, want := range []string{"order-1", "x2", "100.00", "236.50"} {
		if !strings.Contains(body, want) {
			t.Errorf("body should contain %q", want)
		}
	}
}

func TestMailer_SendReturnStatus_ApprovedIncludesAddress(t *testing.T) {
	sender := &mockSender{}
	m := NewMailerWithSender(sender, "no-reply@bijou.example")

	rr := &model.ReturnRequest{
		ID:            "ret-1",
		Status:        model.ReturnStatusApproved,
		ReturnAddress: "Bijou Returns, Kadikoy Istanbul 34710",
	}
	if err := m.SendReturnStatus(context.Background(), "a@example.com", "Ali", rr); err != nil {
		t.Fatalf("SendReturnStatus() error = %v", err)
	}
	body := render(t, sender.sent[0])
	if !strings.Contains(body, "Kadikoy Istanbul 34710") {
		t.Error("approved mail should contain the return address")
	}
}

func TestMailer_SenderError_IsWrapped(t *testing.T) {
	boom := errors.New("smtp down")
	m := NewMailerWithSender(&mockSender{err: boom}, "no-reply@bijou.example")

	err := m.SendVerificationCode(context.Background(), "a@example.com", "Ali", "000000", time.Minute)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped sender error, got %v", err)
	}
}

func TestMailer_CancelledContext_DoesNotSend(t *testing.T) {
	sender := &mockSender{}
	m := NewMailerWithSender(sender, "no-reply@bijou.example")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.SendVerificationCode(ctx, "a@example.com", "Ali", "000000", time.Minute); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(sender.sent) != 0 {
		t.Error("no message should be sent")
	}
}

func TestDisabled_ReturnsNil(t *testing.T) {
	var d Disabled
	ctx := context.Background()
	if err := d.SendVerificationCode(ctx, "a@example.com", "Ali", "123456", time.Minute); err != nil {
		t.Errorf("SendVerificationCode() error = %v", err)
	}
	if err := d.SendOrderConfirmation(ctx, "a@example.com", "Ali", &model.Order{ID: "o"}); err != nil {
		t.Errorf("SendOrderConfirmation() error = %v", err)
	}
	if err := d.SendReturnStatus(ctx, "a@example.com", "Ali", &model.ReturnRequest{ID: "r"}); err != nil {
		t.Errorf("SendReturnStatus() error = %v", err)
	}
}
