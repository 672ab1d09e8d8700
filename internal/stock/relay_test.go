package stock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

type memClaimer struct {
	seen     map[string]bool
	released []string
}

func (c *memClaimer) Claim(_ context.Context, id string) (bool, error) {
	if c.seen[id] {
		return false, nil
	}
	c.seen[id] = true
	return true, nil
}

func (c *memClaimer) Release(_ context.Context, id string) error {
	delete(c.seen, id)
	c.released = append(c.released, id)
	return nil
}

func stockLowMessage(t *testing.T, stock int) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(context.Background(), orders.EventStockLow, "test", "p1", orders.StockLowPayload{
		ProductID: "p1", ProductName: "Lait", SKU: "LAIT-1", Stock: stock, Threshold: 5,
	})
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Topic: orders.TopicStockLow, Value: b}
}

func TestRelay_AlertsOncePerEvent(t *testing.T) {
	alerter := &recordingAlerter{}
	dedup := &memClaimer{seen: map[string]bool{}}
	r := &Relay{Alerter: alerter, Dedup: dedup}

	m := stockLowMessage(t, 2)
	require.NoError(t, r.Handle(context.Background(), m))
	require.NoError(t, r.Handle(context.Background(), m))

	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, "Lait", alerter.alerts[0].Name)
	assert.Equal(t, 2, alerter.alerts[0].Stock)
}

func TestRelay_FailureReleasesClaim(t *testing.T) {
	alerter := &recordingAlerter{err: errors.New("smtp down")}
	dedup := &memClaimer{seen: map[string]bool{}}
	r := &Relay{Alerter: alerter, Dedup: dedup}

	m := stockLowMessage(t, 1)
	assert.Error(t, r.Handle(context.Background(), m))
	assert.Len(t, dedup.released, 1)

	alerter.err = nil
	require.NoError(t, r.Handle(context.Background(), m))
	assert.Len(t, alerter.alerts, 2)
}

func TestRelay_SkipsOtherEventsAndGarbage(t *testing.T) {
	alerter := &recordingAlerter{}
	r := &Relay{Alerter: alerter}

	env, err := orders.NewEnvelope(context.Background(), orders.EventOrderPaid, "test", "o1", map[string]string{})
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NoError(t, r.Handle(context.Background(), kafkago.Message{Value: b}))

	assert.Error(t, r.Handle(context.Background(), kafkago.Message{Value: []byte("{")}))

	env.EventType = orders.EventStockLow
	env.Payload = json.RawMessage(`"not an object"`)
	b, err = json.Marshal(env)
	require.NoError(t, err)
	assert.NoError(t, r.Handle(context.Background(), kafkago.Message{Value: b}))
	assert.Empty(t, alerter.alerts)
}
