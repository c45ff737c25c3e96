package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TON618OFF/FactorioStore/internal/domain"
	"github.com/TON618OFF/FactorioStore/internal/event"
	"github.com/TON618OFF/FactorioStore/internal/receipt"
	apperrors "github.com/TON618OFF/FactorioStore/pkg/errors"
	pkgkafka "github.com/TON618OFF/FactorioStore/pkg/kafka"
)

// --- Mock Renderer ---

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, layout *receipt.Layout) ([]byte, error) {
	args := m.Called(ctx, layout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// --- Mock Transport ---

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Name() string {
	return "mock"
}

func (m *mockTransport) Send(ctx context.Context, msg *domain.OutboundMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// --- Mock Ledger ---

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Create(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *mockLedger) ListByOrderID(ctx context.Context, orderID string) ([]domain.DeliveryAttempt, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DeliveryAttempt), args.Error(1)
}

// --- Kafka writer for outcome events ---

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

// --- Test helpers ---

var testPDF = []byte("%PDF-1.4 receipt")

type fixture struct {
	renderer  *mockRenderer
	transport *mockTransport
	logs      *bytes.Buffer
}

func newFixture() *fixture {
	return &fixture{
		renderer:  new(mockRenderer),
		transport: new(mockTransport),
		logs:      new(bytes.Buffer),
	}
}

func (f *fixture) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(f.logs, nil))
}

func (f *fixture) dispatcher(opts ...Option) *Dispatcher {
	opts = append([]Option{WithClock(func() time.Time { return fixedTime }), WithLocation(time.UTC)}, opts...)
	return NewDispatcher(f.renderer, f.transport, "shop@example.com", f.logger(), opts...)
}

func layoutHasLines(want ...string) any {
	return mock.MatchedBy(func(l *receipt.Layout) bool {
		lines := l.Lines()
		for _, w := range want {
			found := false
			for _, got := range lines {
				if got == w {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	})
}

// --- Tests ---

func TestDispatch_ScenarioA1(t *testing.T) {
	f := newFixture()
	d := f.dispatcher()
	ctx := context.Background()

	f.renderer.On("Render", mock.Anything, layoutHasLines(
		"Widget - 2 x 50 руб. = 100 руб.",
		"Gadget - 1 x 50 руб. = 50 руб.",
		"Итого: 150 руб.",
	)).Return(testPDF, nil).Once()

	f.transport.On("Send", mock.Anything, mock.MatchedBy(func(m *domain.OutboundMessage) bool {
		return m.From == "shop@example.com" &&
			m.To == "x@y.com" &&
			m.Subject == "Ваш чек заказа #A1" &&
			m.Body == "Спасибо за заказ! Чек во вложении." &&
			len(m.Attachments) == 1 &&
			m.Attachments[0].Filename == "receipt_A1.pdf" &&
			m.Attachments[0].ContentType == "application/pdf" &&
			bytes.Equal(m.Attachments[0].Content, testPDF)
	})).Return(nil).Once()

	result, err := d.Dispatch(ctx, "A1", orderA1())

	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Equal(t, "A1", result.OrderID)
	assert.Equal(t, "x@y.com", result.Recipient)
	assert.Equal(t, "receipt_A1.pdf", result.Attachment)
	assert.Equal(t, len(testPDF), result.SizeBytes)
	assert.Empty(t, result.Error)
	assert.Contains(t, f.logs.String(), "receipt sent")

	f.renderer.AssertExpectations(t)
	f.transport.AssertExpectations(t)
}

func TestDispatch_EmptyItemsStillSends(t *testing.T) {
	f := newFixture()
	d := f.dispatcher()

	order := orderA1()
	order.Items = []domain.LineItem{}

	f.renderer.On("Render", mock.Anything, layoutHasLines("Товары:", "Итого: 150 руб.")).Return(testPDF, nil).Once()
	f.transport.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := d.Dispatch(context.Background(), "A1", order)

	require.NoError(t, err)
	assert.True(t, result.Delivered)
	f.transport.AssertNumberOfCalls(t, "Send", 1)
}

func TestDispatch_TotalPrintedVerbatim(t *testing.T) {
	f := newFixture()
	d := f.dispatcher()

	order := orderA1()
	order.TotalPrice = money("1")

	f.renderer.On("Render", mock.Anything, layoutHasLines("Итого: 1 руб.")).Return(testPDF, nil).Once()
	f.transport.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := d.Dispatch(context.Background(), "A1", order)
	require.NoError(t, err)
	f.renderer.AssertExpectations(t)
}

func TestDispatch_DeliveryFailureIsSuppressed(t *testing.T) {
	f := newFixture()
	d := f.dispatcher()

	f.renderer.On("Render", mock.Anything, mock.Anything).Return(testPDF, nil).Once()
	f.transport.On("Send", mock.Anything, mock.Anything).Return(errors.New("535 authentication failed")).Once()

	result, err := d.Dispatch(context.Background(), "A1", orderA1())

	require.NoError(t, err)
	assert.False(t, result.Delivered)
	assert.Equal(t, "535 authentication failed", result.Error)

	logs := f.logs.String()
	assert.Contains(t, logs, "receipt delivery failed")
	assert.Contains(t, logs, "535 authentication failed")
	assert.Contains(t, logs, `"order_id":"A1"`)
	f.transport.AssertNumberOfCalls(t, "Send", 1)
}

func TestDispatch_TwiceSendsTwice(t *testing.T) {
	f := newFixture()
	d := f.dispatcher()

	f.renderer.On("Render", mock.Anything, mock.Anything).Return(testPDF, nil)
	f.transport.On("Send", mock.Anything, mock.Anything).Return(nil)

	for range 2 {
		_, err := d.Dispatch(context.Background(), "A1", orderA1())
		require.NoError(t, err)
	}

	f.renderer.AssertNumberOfCalls(t, "Render", 2)
	f.transport.AssertNumberOfCalls(t, "Send", 2)
}

func TestDispatch_RenderFailureSendsNothing(t *testing.T) {
	f := newFixture()
	d := f.dispatcher()

	f.renderer.On("Render", mock.Anything, mock.Anything).Return(nil, errors.New("chrome unavailable")).Once()

	result, err := d.Dispatch(context.Background(), "A1", orderA1())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrRenderFailed)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "RENDER_FAILED", appErr.Code)

	assert.Contains(t, f.logs.String(), "chrome unavailable")
	f.transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDispatch_NilOrder(t *testing.T) {
	f := newFixture()
	d := f.dispatcher()

	_, err := d.Dispatch(context.Background(), "A1", nil)

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	f.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}

func TestDispatch_MissingEmailIsDeliveryFailure(t *testing.T) {
	f := newFixture()
	d := f.dispatcher()

	order := orderA1()
	order.Email = ""

	f.renderer.On("Render", mock.Anything, layoutHasLines("Пользователь: ")).Return(testPDF, nil).Once()
	f.transport.On("Send", mock.Anything, mock.MatchedBy(func(m *domain.OutboundMessage) bool {
		return m.To == ""
	})).Return(errors.New("no recipient")).Once()

	result, err := d.Dispatch(context.Background(), "A1", order)

	require.NoError(t, err)
	assert.False(t, result.Delivered)
}

func TestDispatch_RecordsAttemptInLedger(t *testing.T) {
	f := newFixture()
	ledger := new(mockLedger)
	d := f.dispatcher(WithLedger(ledger))

	f.renderer.On("Render", mock.Anything, mock.Anything).Return(testPDF, nil)
	f.transport.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
	f.transport.On("Send", mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()

	ledger.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.DeliveryAttempt) bool {
		return a.Status == domain.AttemptStatusSent && a.Error == "" && a.OrderID == "A1" && a.Transport == "mock" && a.ID != ""
	})).Return(nil).Once()
	ledger.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.DeliveryAttempt) bool {
		return a.Status == domain.AttemptStatusFailed && a.Error == "timeout" && a.Filename == "receipt_A1.pdf"
	})).Return(nil).Once()

	_, err := d.Dispatch(context.Background(), "A1", orderA1())
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), "A1", orderA1())
	require.NoError(t, err)

	ledger.AssertExpectations(t)
}

func TestDispatch_LedgerAndEventFailuresIgnored(t *testing.T) {
	f := newFixture()
	ledger := new(mockLedger)
	w := &recordingWriter{err: errors.New("broker down")}
	producer := event.NewProducer(pkgkafka.NewProducerWithWriter(w, []string{"kafka:9092"}, f.logger()), f.logger())
	d := f.dispatcher(WithLedger(ledger), WithEvents(producer))

	f.renderer.On("Render", mock.Anything, mock.Anything).Return(testPDF, nil).Once()
	f.transport.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
	ledger.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	result, err := d.Dispatch(context.Background(), "A1", orderA1())

	require.NoError(t, err)
	assert.True(t, result.Delivered)
	logs := f.logs.String()
	assert.Contains(t, logs, "failed to record delivery attempt")
	assert.Contains(t, logs, "failed to publish receipt outcome event")
}

func TestDispatch_PublishesOutcomeEvents(t *testing.T) {
	f := newFixture()
	w := &recordingWriter{}
	producer := event.NewProducer(pkgkafka.NewProducerWithWriter(w, []string{"kafka:9092"}, f.logger()), f.logger())
	d := f.dispatcher(WithEvents(producer))

	f.renderer.On("Render", mock.Anything, mock.Anything).Return(testPDF, nil)
	f.transport.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
	f.transport.On("Send", mock.Anything, mock.Anything).Return(errors.New("refused")).Once()

	_, err := d.Dispatch(context.Background(), "A1", orderA1())
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), "A1", orderA1())
	require.NoError(t, err)

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "ecommerce.receipt.sent", w.msgs[0].Topic)
	assert.Equal(t, "ecommerce.receipt.failed", w.msgs[1].Topic)
}

func TestDispatch_UsesClockAndLocation(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(WithLocation(time.FixedZone("MSK", 3*60*60)))

	f.renderer.On("Render", mock.Anything, layoutHasLines("Дата: 09.03.2025, 17:05:07")).Return(testPDF, nil).Once()
	f.transport.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := d.Dispatch(context.Background(), "A1", orderA1())
	require.NoError(t, err)
	f.renderer.AssertExpectations(t)
}

func TestListAttempts(t *testing.T) {
	f := newFixture()
	ledger := new(mockLedger)
	d := f.dispatcher(WithLedger(ledger))

	attempts := []domain.DeliveryAttempt{{ID: "a-1", OrderID: "A1", Status: domain.AttemptStatusSent}}
	ledger.On("ListByOrderID", mock.Anything, "A1").Return(attempts, nil)
	ledger.On("ListByOrderID", mock.Anything, "B2").Return([]domain.DeliveryAttempt{}, nil)
	ledger.On("ListByOrderID", mock.Anything, "C3").Return(nil, errors.New("db down"))

	got, err := d.ListAttempts(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, attempts, got)

	_, err = d.ListAttempts(context.Background(), "B2")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = d.ListAttempts(context.Background(), "C3")
	assert.Error(t, err)
}

func TestListAttempts_LedgerDisabled(t *testing.T) {
	d := newFixture().dispatcher()

	_, err := d.ListAttempts(context.Background(), "A1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
