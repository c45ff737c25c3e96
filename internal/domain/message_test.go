package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReceiptMessage(t *testing.T) {
	pdf := []byte("%PDF-1.4")
	msg := NewReceiptMessage("shop@example.com", "x@y.com", "A1", pdf)

	assert.Equal(t, "shop@example.com", msg.From)
	assert.Equal(t, "x@y.com", msg.To)
	assert.Equal(t, "Ваш чек заказа #A1", msg.Subject)
	assert.Equal(t, "Спасибо за заказ! Чек во вложении.", msg.Body)

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "receipt_A1.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, pdf, att.Content)
}
