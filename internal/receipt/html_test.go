package receipt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTML_RendersLines(t *testing.T) {
	doc := NewDocument()
	doc.Title("Чек заказа").MoveDown()
	doc.Text("Товары:", Underline())
	doc.Text("Итого: 150 руб.", AlignRight())
	layout, err := doc.Close()
	require.NoError(t, err)

	page, err := HTML(layout)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, `<meta charset="UTF-8">`)
	assert.Contains(t, page, "<title>Чек заказа</title>")
	assert.Contains(t, page, `class="center" style="font-size: 16pt">Чек заказа</p>`)
	assert.Contains(t, page, `class="left underline"`)
	assert.Contains(t, page, `class="right" style="font-size: 12pt">Итого: 150 руб.</p>`)
	assert.Contains(t, page, "&nbsp;")
}

func TestHTML_EscapesText(t *testing.T) {
	doc := NewDocument()
	doc.Text(`<script>alert("x")</script> - 1 x 2 руб.`)
	layout, err := doc.Close()
	require.NoError(t, err)

	page, err := HTML(layout)
	require.NoError(t, err)
	assert.NotContains(t, page, "<script>")
	assert.Contains(t, page, "&lt;script&gt;")
}
