package logmail

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TON618OFF/FactorioStore/internal/domain"
)

func TestSend_LogsEnvelope(t *testing.T) {
	var buf bytes.Buffer
	tr := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	msg := domain.NewReceiptMessage("shop@example.com", "x@y.com", "A1", []byte("%PDF-1.4"))
	require.NoError(t, tr.Send(context.Background(), msg))

	out := buf.String()
	assert.Contains(t, out, `"to":"x@y.com"`)
	assert.Contains(t, out, `"filename":"receipt_A1.pdf"`)
	assert.Contains(t, out, `"size_bytes":8`)
	assert.Equal(t, "log", tr.Name())
}
