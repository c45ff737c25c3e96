package service

import (
	"fmt"
	"time"

	"github.com/TON618OFF/FactorioStore/internal/domain"
	"github.com/TON618OFF/FactorioStore/internal/receipt"
)

// TimestampFormat is how the render time appears on the receipt.
const TimestampFormat = "02.01.2006, 15:04:05"

// ComposeReceipt lays out the receipt for an order. The grand total is the
// order's totalPrice as given; line totals are never summed.
func ComposeReceipt(orderID string, order *domain.OrderRecord, at time.Time) (*receipt.Layout, error) {
	doc := receipt.NewDocument()

	doc.Title("Чек заказа").MoveDown()

	doc.Text(fmt.Sprintf("Заказ #%s", orderID))
	doc.Text(fmt.Sprintf("Дата: %s", at.Format(TimestampFormat)))
	doc.Text(fmt.Sprintf("Пользователь: %s", order.Email))
	doc.MoveDown()

	doc.Text("Товары:", receipt.Underline())
	for _, item := range order.Items {
		doc.Text(item.ReceiptLine())
	}
	doc.MoveDown()

	doc.Text(fmt.Sprintf("Итого: %s руб.", domain.FormatMoney(order.TotalPrice)), receipt.AlignRight())

	return doc.Close()
}
