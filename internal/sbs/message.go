// Package sbs implements the BaseStation ("SBS") wire format: a CRLF-framed,
// comma-separated text protocol carrying ADS-B derived aircraft reports.
// It provides the frame decoder that extracts lines from a byte stream and
// the codec that converts lines to and from typed messages.
package sbs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformed reports a line that does not conform to the SBS format.
// Errors returned by ParseLine match it with errors.Is.
var ErrMalformed = errors.New("malformed SBS message")

// MessageType classifies an SBS message by its leading type code.
type MessageType int

const (
	Transmission   MessageType = iota + 1 // MSG
	Status                                // STA
	Identification                        // ID
	Click                                 // CLK
	New                                   // AIR
	Remove                                // SEL
)

var messageTypeCodes = map[string]MessageType{
	"MSG": Transmission,
	"STA": Status,
	"ID":  Identification,
	"CLK": Click,
	"AIR": New,
	"SEL": Remove,
}

// Code returns the wire type code, e.g. "MSG" for Transmission.
func (t MessageType) Code() string {
	switch t {
	case Transmission:
		return "MSG"
	case Status:
		return "STA"
	case Identification:
		return "ID"
	case Click:
		return "CLK"
	case New:
		return "AIR"
	case Remove:
		return "SEL"
	}
	return ""
}

func (t MessageType) String() string {
	if code := t.Code(); code != "" {
		return code
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// MarshalJSON renders the wire code so dumps read like the protocol.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Code() + `"`), nil
}

// UnmarshalJSON accepts the wire code emitted by MarshalJSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	code := strings.Trim(string(data), `"`)
	mt, ok := messageTypeCodes[code]
	if !ok {
		return fmt.Errorf("unknown message type code %q", code)
	}
	*t = mt
	return nil
}

// TransmissionType sub-classifies a Transmission (MSG) report.
type TransmissionType int

const (
	ESIdentAndCategory   TransmissionType = 1
	ESSurfacePosition    TransmissionType = 2
	ESAirbornePosition   TransmissionType = 3
	ESAirborneVelocity   TransmissionType = 4
	SurveillanceAltitude TransmissionType = 5
	SurveillanceID       TransmissionType = 6
	AirToAir             TransmissionType = 7
	AllCallReply         TransmissionType = 8
)

// Message is one parsed SBS line. Optional fields are nil when the wire
// column was empty. Generated and Logged each combine the format's
// date and time-of-day column pairs into a single UTC timestamp.
type Message struct {
	Type             MessageType      `json:"message_type"`
	TransmissionType TransmissionType `json:"transmission_type"`
	SessionID        int              `json:"session_id"`
	AircraftID       int              `json:"aircraft_id"`
	HexIdent         string           `json:"hex_ident"`
	FlightID         int              `json:"flight_id"`
	Generated        time.Time        `json:"generated"`
	Logged           time.Time        `json:"logged"`
	Callsign         *string          `json:"callsign"`
	Altitude         *int             `json:"altitude"`
	GroundSpeed      *float64         `json:"ground_speed"`
	Track            *float64         `json:"track"`
	Latitude         *float64         `json:"lat"`
	Longitude        *float64         `json:"lon"`
	VerticalRate     *int             `json:"vertical_rate"`
	Squawk           *string          `json:"squawk"`
	Alert            *bool            `json:"alert"`
	Emergency        *bool            `json:"emergency"`
	SPI              *bool            `json:"spi"`
	OnGround         *bool            `json:"is_on_ground"`
}

// ZeroICAO is the known-invalid all-zeros hex identifier some receivers
// emit; consumers must drop it before aggregation.
const ZeroICAO = "000000"

// ParseLine parses one SBS wire line into a Message. A trailing CRLF is
// tolerated. The returned error matches ErrMalformed when the line has an
// unrecognized type code, the wrong field count for its type, or a field
// that fails conversion.
func ParseLine(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ",")

	code := fields[0]
	mt, ok := messageTypeCodes[code]
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized type code %q", ErrMalformed, code)
	}

	layout := layouts[mt]
	if len(fields)-1 != len(layout) {
		return nil, fmt.Errorf("%w: %s expects %d fields, got %d",
			ErrMalformed, code, len(layout)+1, len(fields))
	}

	st := parseState{msg: Message{Type: mt}}
	for i, fd := range layout {
		if err := fd.parse(&st, fields[i+1]); err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrMalformed, fd.name, err)
		}
	}
	return st.finalize()
}

// Serialize emits the comma-separated wire form of a message, without a
// trailing delimiter. Nil optional fields become empty columns. The result
// is not guaranteed byte-identical to the line the message was parsed from,
// but re-parsing it yields an equal message.
func Serialize(m *Message) string {
	layout := layouts[m.Type]
	if layout == nil {
		return ""
	}
	fields := make([]string, 0, len(layout)+1)
	fields = append(fields, m.Type.Code())
	for _, fd := range layout {
		fields = append(fields, fd.write(m))
	}
	return strings.Join(fields, ",")
}
