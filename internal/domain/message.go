package domain

import (
	"fmt"
	"time"
)

const (
	// ContentTypePDF is the MIME type of receipt attachments.
	ContentTypePDF = "application/pdf"

	// ReceiptBody is the plain-text body of every receipt email.
	ReceiptBody = "Спасибо за заказ! Чек во вложении."
)

// ReceiptSubject returns the subject line for an order's receipt email.
func ReceiptSubject(orderID string) string {
	return fmt.Sprintf("Ваш чек заказа #%s", orderID)
}

// ReceiptFilename returns the attachment filename for an order's receipt.
func ReceiptFilename(orderID string) string {
	return fmt.Sprintf("receipt_%s.pdf", orderID)
}

// Attachment is a file attached to an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// OutboundMessage is a structured email handed to a mail transport.
type OutboundMessage struct {
	From        string
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// NewReceiptMessage builds the receipt email for orderID carrying pdf.
func NewReceiptMessage(from, to, orderID string, pdf []byte) *OutboundMessage {
	return &OutboundMessage{
		From:    from,
		To:      to,
		Subject: ReceiptSubject(orderID),
		Body:    ReceiptBody,
		Attachments: []Attachment{{
			Filename:    ReceiptFilename(orderID),
			ContentType: ContentTypePDF,
			Content:     pdf,
		}},
	}
}

// Delivery attempt statuses.
const (
	AttemptStatusSent   = "sent"
	AttemptStatusFailed = "failed"
)

// DeliveryAttempt records one try at emailing a receipt.
type DeliveryAttempt struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Recipient   string    `json:"recipient"`
	Filename    string    `json:"filename"`
	SizeBytes   int       `json:"size_bytes"`
	Transport   string    `json:"transport"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// DispatchResult summarizes a single dispatch.
type DispatchResult struct {
	OrderID          string `json:"order_id"`
	Recipient        string `json:"recipient"`
	Attachment       string `json:"attachment"`
	SizeBytes        int    `json:"size_bytes"`
	Delivered        bool   `json:"delivered"`
	Error            string `json:"error,omitempty"`
	RenderDurationMS int64  `json:"render_duration_ms"`
}
