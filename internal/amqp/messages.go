package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventInvoiceCreated     = "invoice.created"
	EventInvoiceDeleted     = "invoice.deleted"
	EventTransactionCreated = "transaction.created"
)

// EventMessage is a lightweight notification about a billing change.
// It carries identifiers only; consumers read the current state from the
// database.
type EventMessage struct {
	Event         string    `json:"event"`
	InvoiceID     int64     `json:"invoice_id,omitempty"`
	InvoiceNo     string    `json:"invoice_no,omitempty"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewInvoiceCreated(id int64, invoiceNo string) *EventMessage {
	return &EventMessage{Event: EventInvoiceCreated, InvoiceID: id, InvoiceNo: invoiceNo, Timestamp: time.Now()}
}

// NewInvoiceDeleted carries the number because the row no longer exists.
func NewInvoiceDeleted(id int64, invoiceNo string) *EventMessage {
	return &EventMessage{Event: EventInvoiceDeleted, InvoiceID: id, InvoiceNo: invoiceNo, Timestamp: time.Now()}
}

func NewTransactionCreated(id int64) *EventMessage {
	return &EventMessage{Event: EventTransactionCreated, TransactionID: id, Timestamp: time.Now()}
}

// Validate rejects unknown events and events missing their identifiers.
func (m *EventMessage) Validate() error {
	switch m.Event {
	case EventInvoiceCreated:
		if m.InvoiceID <= 0 {
			return fmt.Errorf("%s: missing invoice_id", m.Event)
		}
	case EventInvoiceDeleted:
		if m.InvoiceNo == "" {
			return fmt.Errorf("%s: missing invoice_no", m.Event)
		}
	case EventTransactionCreated:
		if m.TransactionID <= 0 {
			return fmt.Errorf("%s: missing transaction_id", m.Event)
		}
	default:
		return fmt.Errorf("unknown event %q", m.Event)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON decodes and validates a message.
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
