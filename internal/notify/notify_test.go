package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"atstore-api/internal/vault"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
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

func testDelivery() Delivery {
	return Delivery{
		Email:        "buyer@example.com",
		OrderID:      "ORD123456",
		ProductLabel: "genshin / starter / Standard",
		Credential:   vault.Credential{Username: "player.one", Password: "hunter22"},
	}
}

func TestKafkaNotifier_PublishesSealedCredential(t *testing.T) {
	v, err := vault.New("test-secret")
	require.NoError(t, err)
	w := &fakeWriter{}
	n := NewKafkaNotifier(w, v, zap.NewNop())

	require.NoError(t, n.SendDelivery(context.Background(), testDelivery()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ORD123456", string(w.msgs[0].Key))
	assert.NotContains(t, string(w.msgs[0].Value), "hunter22")

	var event DeliveryEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, "buyer@example.com", event.Email)

	cred, err := v.DecryptCredential(vault.Credential{Username: event.EncryptedUsername, Password: event.EncryptedPassword})
	require.NoError(t, err)
	assert.Equal(t, "player.one", cred.Username)
	assert.Equal(t, "hunter22", cred.Password)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	v, err := vault.New("test-secret")
	require.NoError(t, err)
	broker := errors.New("broker down")
	n := NewKafkaNotifier(&fakeWriter{err: broker}, v, zap.NewNop())

	assert.ErrorIs(t, n.SendDelivery(context.Background(), testDelivery()), broker)
}

func TestLogNotifier_MasksCredential(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.SendDelivery(context.Background(), testDelivery()))
	require.Equal(t, 1, logs.Len())

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "p***e", fields["username"])
	for _, v := range fields {
		assert.NotEqual(t, "hunter22", v)
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "**"},
		{"ab", "**"},
		{"abc", "a***c"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, mask(tt.in))
		})
	}
}
