package sbs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout  = "2006/01/02"
	timeLayout  = "15:04:05.000000"
	stampLayout = "2006/01/02 15:04:05"
)

// parseState accumulates fields during a parse. The wire carries each
// timestamp as separate date and time-of-day columns; they are held as text
// until finalize combines them.
type parseState struct {
	msg     Message
	genDate string
	genTime string
	logDate string
	logTime string
}

func (st *parseState) finalize() (*Message, error) {
	var err error
	st.msg.Generated, err = parseStamp(st.genDate, st.genTime)
	if err != nil {
		return nil, fmt.Errorf("%w: generated timestamp: %v", ErrMalformed, err)
	}
	st.msg.Logged, err = parseStamp(st.logDate, st.logTime)
	if err != nil {
		return nil, fmt.Errorf("%w: logged timestamp: %v", ErrMalformed, err)
	}
	return &st.msg, nil
}

// parseStamp combines a date and a time-of-day column into a UTC timestamp.
// Go accepts fractional seconds on parse without them appearing in the
// layout, so both millisecond and microsecond feeds are handled.
func parseStamp(date, tod string) (time.Time, error) {
	return time.Parse(stampLayout, date+" "+tod)
}

// fieldDescriptor binds one wire column to its Message field. The layout
// tables below are the single source of truth for column order and
// coercion, shared by ParseLine and Serialize.
type fieldDescriptor struct {
	name  string
	parse func(st *parseState, v string) error
	write func(m *Message) string
}

func intField(name string, assign func(*Message, int), read func(*Message) int) fieldDescriptor {
	return fieldDescriptor{
		name: name,
		parse: func(st *parseState, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			assign(&st.msg, n)
			return nil
		},
		write: func(m *Message) string { return strconv.Itoa(read(m)) },
	}
}

func optIntField(name string, assign func(*Message, *int), read func(*Message) *int) fieldDescriptor {
	return fieldDescriptor{
		name: name,
		parse: func(st *parseState, v string) error {
			if v == "" {
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			assign(&st.msg, &n)
			return nil
		},
		write: func(m *Message) string {
			if p := read(m); p != nil {
				return strconv.Itoa(*p)
			}
			return ""
		},
	}
}

func optFloatField(name string, assign func(*Message, *float64), read func(*Message) *float64) fieldDescriptor {
	return fieldDescriptor{
		name: name,
		parse: func(st *parseState, v string) error {
			if v == "" {
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			assign(&st.msg, &f)
			return nil
		},
		write: func(m *Message) string {
			if p := read(m); p != nil {
				return strconv.FormatFloat(*p, 'f', -1, 64)
			}
			return ""
		},
	}
}

func optStringField(name string, trim bool, assign func(*Message, *string), read func(*Message) *string) fieldDescriptor {
	return fieldDescriptor{
		name: name,
		parse: func(st *parseState, v string) error {
			if trim {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				return nil
			}
			assign(&st.msg, &v)
			return nil
		},
		write: func(m *Message) string {
			if p := read(m); p != nil {
				return *p
			}
			return ""
		},
	}
}

func optBoolField(name string, assign func(*Message, *bool), read func(*Message) *bool) fieldDescriptor {
	return fieldDescriptor{
		name: name,
		parse: func(st *parseState, v string) error {
			var b bool
			switch v {
			case "":
				return nil
			case "0":
				b = false
			case "1":
				b = true
			default:
				return fmt.Errorf("invalid boolean %q", v)
			}
			assign(&st.msg, &b)
			return nil
		},
		write: func(m *Message) string {
			p := read(m)
			if p == nil {
				return ""
			}
			if *p {
				return "1"
			}
			return "0"
		},
	}
}

func stampField(name, format string, scratch func(*parseState) *string, read func(*Message) time.Time) fieldDescriptor {
	return fieldDescriptor{
		name: name,
		parse: func(st *parseState, v string) error {
			*scratch(st) = v
			return nil
		},
		write: func(m *Message) string { return read(m).Format(format) },
	}
}

var txType = fieldDescriptor{
	name: "transmission_type",
	parse: func(st *parseState, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		if n < 1 || n > 8 {
			return fmt.Errorf("transmission type %d out of range", n)
		}
		st.msg.TransmissionType = TransmissionType(n)
		return nil
	},
	write: func(m *Message) string { return strconv.Itoa(int(m.TransmissionType)) },
}

// Non-MSG types carry the transmission type column but leave it empty.
var txEmpty = fieldDescriptor{
	name: "transmission_type",
	parse: func(st *parseState, v string) error {
		if v != "" {
			return fmt.Errorf("unexpected value %q", v)
		}
		return nil
	},
	write: func(m *Message) string { return "" },
}

var hexIdent = fieldDescriptor{
	name:  "hex_ident",
	parse: func(st *parseState, v string) error { st.msg.HexIdent = v; return nil },
	write: func(m *Message) string { return m.HexIdent },
}

var (
	sessionID = intField("session_id",
		func(m *Message, n int) { m.SessionID = n },
		func(m *Message) int { return m.SessionID })
	aircraftID = intField("aircraft_id",
		func(m *Message, n int) { m.AircraftID = n },
		func(m *Message) int { return m.AircraftID })
	flightID = intField("flight_id",
		func(m *Message, n int) { m.FlightID = n },
		func(m *Message) int { return m.FlightID })

	genDate = stampField("generated_date", dateLayout,
		func(st *parseState) *string { return &st.genDate },
		func(m *Message) time.Time { return m.Generated })
	genTime = stampField("generated_time", timeLayout,
		func(st *parseState) *string { return &st.genTime },
		func(m *Message) time.Time { return m.Generated })
	logDate = stampField("logged_date", dateLayout,
		func(st *parseState) *string { return &st.logDate },
		func(m *Message) time.Time { return m.Logged })
	logTime = stampField("logged_time", timeLayout,
		func(st *parseState) *string { return &st.logTime },
		func(m *Message) time.Time { return m.Logged })

	callsign = optStringField("callsign", true,
		func(m *Message, p *string) { m.Callsign = p },
		func(m *Message) *string { return m.Callsign })
	altitude = optIntField("altitude",
		func(m *Message, p *int) { m.Altitude = p },
		func(m *Message) *int { return m.Altitude })
	groundSpeed = optFloatField("ground_speed",
		func(m *Message, p *float64) { m.GroundSpeed = p },
		func(m *Message) *float64 { return m.GroundSpeed })
	track = optFloatField("track",
		func(m *Message, p *float64) { m.Track = p },
		func(m *Message) *float64 { return m.Track })
	latitude = optFloatField("lat",
		func(m *Message, p *float64) { m.Latitude = p },
		func(m *Message) *float64 { return m.Latitude })
	longitude = optFloatField("lon",
		func(m *Message, p *float64) { m.Longitude = p },
		func(m *Message) *float64 { return m.Longitude })
	verticalRate = optIntField("vertical_rate",
		func(m *Message, p *int) { m.VerticalRate = p },
		func(m *Message) *int { return m.VerticalRate })
	squawk = optStringField("squawk", false,
		func(m *Message, p *string) { m.Squawk = p },
		func(m *Message) *string { return m.Squawk })
	alert = optBoolField("alert",
		func(m *Message, p *bool) { m.Alert = p },
		func(m *Message) *bool { return m.Alert })
	emergency = optBoolField("emergency",
		func(m *Message, p *bool) { m.Emergency = p },
		func(m *Message) *bool { return m.Emergency })
	spi = optBoolField("spi",
		func(m *Message, p *bool) { m.SPI = p },
		func(m *Message) *bool { return m.SPI })
	onGround = optBoolField("is_on_ground",
		func(m *Message, p *bool) { m.OnGround = p },
		func(m *Message) *bool { return m.OnGround })
)

// Column layouts per message type, excluding the leading type code. All
// types share the first nine columns; MSG adds the kinematic payload, and
// SEL/ID/STA carry a trailing callsign column.
var (
	msgLayout = []fieldDescriptor{
		txType, sessionID, aircraftID, hexIdent, flightID,
		genDate, genTime, logDate, logTime,
		callsign, altitude, groundSpeed, track, latitude, longitude,
		verticalRate, squawk, alert, emergency, spi, onGround,
	}

	identLayout = []fieldDescriptor{
		txEmpty, sessionID, aircraftID, hexIdent, flightID,
		genDate, genTime, logDate, logTime,
		callsign,
	}

	headerLayout = []fieldDescriptor{
		txEmpty, sessionID, aircraftID, hexIdent, flightID,
		genDate, genTime, logDate, logTime,
	}
)

var layouts = map[MessageType][]fieldDescriptor{
	Transmission:   msgLayout,
	Status:         identLayout,
	Identification: identLayout,
	Remove:         identLayout,
	New:            headerLayout,
	Click:          headerLayout,
}
