package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

var brt = time.FixedZone("BRT", -3*60*60)

func sampleEvent(kind Kind) Event {
	start := time.Date(2025, 3, 17, 9, 0, 0, 0, brt)
	return Event{
		Kind: kind,
		At:   start.Add(-time.Hour),
		Appointment: model.Appointment{
			ID:             42,
			ProfessionalID: 1,
			CustomerID:     100,
			ServiceID:      10,
			StartTime:      start,
			EndTime:        start.Add(time.Hour),
			Status:         model.StatusPending,
			Notes:          "primeira consulta",
		},
	}
}

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  map[int64]error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if err := f.err[msg.ChatID]; err != nil {
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestTelegramSink_SendsToEveryChat(t *testing.T) {
	sender := &fakeSender{}
	sink := NewTelegramSink(sender, []int64{11, 22}, brt)

	require.NoError(t, sink.Deliver(context.Background(), sampleEvent(KindCreated)))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(11), sender.sent[0].ChatID)
	assert.Equal(t, int64(22), sender.sent[1].ChatID)

	text := sender.sent[0].Text
	assert.Contains(t, text, "Novo agendamento #42")
	assert.Contains(t, text, "17/03/2025, 09:00–10:00")
	assert.Contains(t, text, "pendente")
	assert.Contains(t, text, "primeira consulta")
}

func TestTelegramSink_FormatByKind(t *testing.T) {
	sink := NewTelegramSink(&fakeSender{}, nil, brt)
	assert.Contains(t, sink.FormatMessage(sampleEvent(KindCanceled)), "cancelado")
	assert.Contains(t, sink.FormatMessage(sampleEvent(KindDeleted)), "removido")
	assert.Contains(t, sink.FormatMessage(sampleEvent(KindUpdated)), "atualizado")
}

func TestTelegramSink_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
		retryWait time.Duration
	}{
		{
			name:      "chat blocked",
			err:       &tgbotapi.Error{Code: http.StatusForbidden, Message: "Forbidden: bot was blocked by the user"},
			permanent: true,
		},
		{
			name:      "rate limited",
			err:       &tgbotapi.Error{Code: http.StatusTooManyRequests, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}},
			retryWait: 3 * time.Second,
		},
		{
			name: "network",
			err:  errors.New("dial tcp: i/o timeout"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewTelegramSink(&fakeSender{err: map[int64]error{5: tt.err}}, []int64{5}, brt)
			err := sink.Deliver(context.Background(), sampleEvent(KindCreated))
			require.Error(t, err)
			assert.Equal(t, tt.permanent, IsPermanent(err))

			var ra *RetryAfterError
			if tt.retryWait > 0 {
				require.ErrorAs(t, err, &ra)
				assert.Equal(t, tt.retryWait, ra.Delay)
			} else {
				assert.False(t, errors.As(err, &ra))
			}
		})
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_Deliver(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, topic: "appointments"}

	ev := sampleEvent(KindCreated)
	require.NoError(t, sink.Deliver(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "appointment.created", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, KindCreated, decoded.Kind)
	assert.Equal(t, int64(42), decoded.Appointment.ID)
	assert.True(t, decoded.Appointment.StartTime.Equal(ev.Appointment.StartTime))

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WriteErrorIsRetryable(t *testing.T) {
	sink := &KafkaSink{writer: &fakeWriter{err: errors.New("leader not available")}, topic: "appointments"}
	err := sink.Deliver(context.Background(), sampleEvent(KindUpdated))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "appointments")
}

func TestLogSink(t *testing.T) {
	l := zerolog.New(io.Discard)
	sink := NewLogSink(&l)
	assert.Equal(t, "log", sink.Name())
	assert.NoError(t, sink.Deliver(context.Background(), sampleEvent(KindCreated)))
}
