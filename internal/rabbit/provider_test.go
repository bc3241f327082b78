package rabbit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spockmay/bainbridge-now/internal/rabbit"
	"github.com/spockmay/bainbridge-now/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	loc, err := storage.LoadZone(storage.DefaultZone)
	require.NoError(t, err)
	e, err := storage.NewEvent(time.Date(2025, 9, 5, 18, 0, 0, 0, loc), "Fall Theater Night", "SCHOOL", "44023",
		storage.WithURL("https://example.com/theater"))
	require.NoError(t, err)
	e.ID = 7

	m := rabbit.NewMessage("kenston", e)
	require.Equal(t, rabbit.Message{
		ID:        7,
		Name:      "Fall Theater Night",
		EventType: "SCHOOL",
		Start:     time.Date(2025, 9, 5, 22, 0, 0, 0, time.UTC),
		URL:       "https://example.com/theater",
		Source:    "kenston",
	}, m)
}

func TestProviderNotConnected(t *testing.T) {
	p := rabbit.New(rabbit.Config{Host: "127.0.0.1", Port: 1, User: "user", Password: "pass", Queue: "events"})
	require.ErrorIs(t, p.Publish([]byte("{}")), rabbit.ErrNotConnected)
	require.ErrorIs(t, p.Notify(context.Background(), "kenston", storage.Event{ID: 1}), rabbit.ErrNotConnected)
	require.ErrorIs(t, p.Consume(context.Background(), func(rabbit.Message) {}), rabbit.ErrNotConnected)
	require.Error(t, p.Connect())
	require.NoError(t, p.Close())
}

func TestDecodeMessage(t *testing.T) {
	e, err := storage.NewEvent(time.Date(2025, 9, 9, 23, 0, 0, 0, time.UTC), "Trustees Meeting", "GOVERNMENT", "44023")
	require.NoError(t, err)
	sent := rabbit.NewMessage("township", e)
	body, err := json.Marshal(sent)
	require.NoError(t, err)

	got, err := rabbit.DecodeMessage(body)
	require.NoError(t, err)
	require.Equal(t, sent, got)

	_, err = rabbit.DecodeMessage([]byte("not json"))
	require.Error(t, err)
}
