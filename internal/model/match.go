package model

import (
	"encoding/json"
	"time"
)

// ContactTimeLayout is the canonical human-readable rendering of a contact time.
// Times are always rendered in UTC.
const ContactTimeLayout = "2006-01-02 15:04:05.000000 MST"

// MatchRecord is a PacketRecord whose destination was in the watched address
// set when the record was correlated. It is never mutated after creation.
type MatchRecord struct {
	PacketRecord

	// ContactTime is CapturedAt converted to UTC civil time.
	// It is the zero time when the conversion failed; see ContactTimeErr.
	ContactTime time.Time

	contactErr error
}

// NewMatchRecord builds a MatchRecord from p, deriving the contact time.
// A failed conversion is kept on the record instead of defaulting to the epoch.
func NewMatchRecord(p PacketRecord) MatchRecord {
	ct, err := p.CapturedAt.Civil()
	return MatchRecord{
		PacketRecord: p,
		ContactTime:  ct,
		contactErr:   err,
	}
}

// ContactTimeErr returns the *TimestampError from deriving ContactTime, if any.
func (m MatchRecord) ContactTimeErr() error {
	return m.contactErr
}

// Equal reports whether m and o describe the same packet and contact time.
func (m MatchRecord) Equal(o MatchRecord) bool {
	return m.PacketRecord == o.PacketRecord &&
		m.ContactTime.Equal(o.ContactTime) &&
		(m.contactErr == nil) == (o.contactErr == nil)
}

// ContactTimeText returns ContactTime formatted with ContactTimeLayout.
func (m MatchRecord) ContactTimeText() string {
	if m.contactErr != nil {
		return ""
	}
	return m.ContactTime.UTC().Format(ContactTimeLayout)
}

// matchRecordJSON is the wire form of MatchRecord.
type matchRecordJSON struct {
	Index       int       `json:"index"`
	ContactTime string    `json:"contact_time"`
	CapturedAt  Timestamp `json:"captured_at"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Protocol    Protocol  `json:"protocol"`
}

// MarshalJSON implements json.Marshaler.
func (m MatchRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(matchRecordJSON{
		Index:       m.Index,
		ContactTime: m.ContactTimeText(),
		CapturedAt:  m.CapturedAt,
		Source:      m.Source,
		Destination: m.Destination,
		Protocol:    m.Protocol,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
// The contact time is derived again from captured_at.
func (m *MatchRecord) UnmarshalJSON(data []byte) error {
	var w matchRecordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = NewMatchRecord(PacketRecord{
		Index:       w.Index,
		Source:      w.Source,
		Destination: w.Destination,
		CapturedAt:  w.CapturedAt,
		Protocol:    w.Protocol,
	})
	return nil
}
