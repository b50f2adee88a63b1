package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srinipal/filesearch/pkg/config"
)

func TestEncode(t *testing.T) {
	messages, err := encode([]Event{
		{Key: "search", Value: map[string]any{"query": "cat dog", "hits": 2}},
		{Key: "corpus_reload", Value: map[string]any{"status": "ok"}},
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, []byte("search"), messages[0].Key)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(messages[0].Value, &decoded))
	assert.Equal(t, "cat dog", decoded["query"])
	assert.EqualValues(t, 2, decoded["hits"])
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode([]Event{{Key: "bad", Value: make(chan int)}})
	assert.Error(t, err)
}

func TestNewProducerUsesConfiguredTopic(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "search-events"})
	defer p.Close()
	assert.Equal(t, "search-events", p.writer.Topic)
}
