// Package messaging carries order events between the API and the background
// workers over Kafka, propagating trace context through message headers.
package messaging

import "github.com/segmentio/kafka-go"

// TopicOrderPlaced carries one event per durable order.
const TopicOrderPlaced = "order.placed"

// headerCarrier adapts kafka message headers to the OpenTelemetry
// TextMapCarrier so producer spans link to consumer spans.
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}
