// Package queue carries outbound email over RabbitMQ so request handlers
// never wait on a mail provider.
package queue

import "time"

// EmailQueue is the durable queue email requests are published to.
const EmailQueue = "notify.email"

// EmailRequestedEvent asks the consumer to deliver one message.
type EmailRequestedEvent struct {
	ID          string    `json:"id"`
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	HTML        string    `json:"html"`
	RequestedAt time.Time `json:"requested_at"`
}
