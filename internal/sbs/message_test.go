package sbs

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

const testLine = "MSG,3,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,2850,,,-34.84658,138.67962,,,,,,"

func TestParseLine_AirbornePosition(t *testing.T) {
	msg, err := ParseLine(testLine)
	if err != nil {
		t.Fatalf("ParseLine() failed: %v", err)
	}

	if msg.Type != Transmission {
		t.Errorf("Type = %v, want Transmission", msg.Type)
	}
	if msg.TransmissionType != ESAirbornePosition {
		t.Errorf("TransmissionType = %d, want %d", msg.TransmissionType, ESAirbornePosition)
	}
	if msg.HexIdent != "7C79B7" {
		t.Errorf("HexIdent = %q, want %q", msg.HexIdent, "7C79B7")
	}
	if msg.SessionID != 1 || msg.AircraftID != 1 || msg.FlightID != 1 {
		t.Errorf("Passthrough IDs = (%d,%d,%d), want (1,1,1)",
			msg.SessionID, msg.AircraftID, msg.FlightID)
	}

	wantGen := time.Date(2017, 3, 25, 10, 41, 45, 365000000, time.UTC)
	if !msg.Generated.Equal(wantGen) {
		t.Errorf("Generated = %v, want %v", msg.Generated, wantGen)
	}
	wantLog := time.Date(2017, 3, 25, 10, 41, 45, 384000000, time.UTC)
	if !msg.Logged.Equal(wantLog) {
		t.Errorf("Logged = %v, want %v", msg.Logged, wantLog)
	}

	if msg.Callsign != nil {
		t.Errorf("Callsign = %q, want nil", *msg.Callsign)
	}
	if msg.Altitude == nil || *msg.Altitude != 2850 {
		t.Errorf("Altitude = %v, want 2850", msg.Altitude)
	}
	if msg.Latitude == nil || *msg.Latitude != -34.84658 {
		t.Errorf("Latitude = %v, want -34.84658", msg.Latitude)
	}
	if msg.Longitude == nil || *msg.Longitude != 138.67962 {
		t.Errorf("Longitude = %v, want 138.67962", msg.Longitude)
	}
	for name, p := range map[string]interface{}{
		"GroundSpeed": msg.GroundSpeed, "Track": msg.Track,
		"VerticalRate": msg.VerticalRate, "Squawk": msg.Squawk,
		"Alert": msg.Alert, "Emergency": msg.Emergency,
		"SPI": msg.SPI, "OnGround": msg.OnGround,
	} {
		if !reflect.ValueOf(p).IsNil() {
			t.Errorf("Expected %s to be nil for this line", name)
		}
	}
}

func TestParseLine_TrailingCRLFTolerated(t *testing.T) {
	msg, err := ParseLine(testLine + "\r\n")
	if err != nil {
		t.Fatalf("ParseLine() failed on delimited line: %v", err)
	}
	if msg.HexIdent != "7C79B7" {
		t.Errorf("HexIdent = %q, want %q", msg.HexIdent, "7C79B7")
	}
}

func TestParseLine_CallsignTrimmed(t *testing.T) {
	line := "MSG,1,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,QFA563  ,,,,,,,,,,,"
	msg, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine() failed: %v", err)
	}
	if msg.Callsign == nil || *msg.Callsign != "QFA563" {
		t.Errorf("Callsign = %v, want %q", msg.Callsign, "QFA563")
	}
}

func TestParseLine_BlankPaddedCallsignIsNil(t *testing.T) {
	line := "MSG,1,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,        ,,,,,,,,,,,"
	msg, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine() failed: %v", err)
	}
	if msg.Callsign != nil {
		t.Errorf("Callsign = %q, want nil", *msg.Callsign)
	}
}

func TestParseLine_SquawkKeepsLeadingZeros(t *testing.T) {
	line := "MSG,6,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,,,,,,,0732,0,0,0,0"
	msg, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine() failed: %v", err)
	}
	if msg.Squawk == nil || *msg.Squawk != "0732" {
		t.Errorf("Squawk = %v, want %q", msg.Squawk, "0732")
	}
	if msg.Alert == nil || *msg.Alert {
		t.Errorf("Alert = %v, want false", msg.Alert)
	}
	if msg.OnGround == nil || *msg.OnGround {
		t.Errorf("OnGround = %v, want false", msg.OnGround)
	}

	out := Serialize(msg)
	back, err := ParseLine(out)
	if err != nil {
		t.Fatalf("Re-parse of %q failed: %v", out, err)
	}
	if back.Squawk == nil || *back.Squawk != "0732" {
		t.Errorf("Squawk after round-trip = %v, want %q", back.Squawk, "0732")
	}
}

func TestParseLine_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"unknown type code", "XYZ,3,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,,,,,,,,,,,"},
		{"empty line", ""},
		{"wrong field count for MSG", "MSG,3,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384"},
		{"wrong field count for SEL", "SEL,,1,1,7C79B7,1,2017/03/25,10:41:45.365"},
		{"bad altitude", "MSG,3,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,abc,,,-34.84658,138.67962,,,,,,"},
		{"bad boolean", "MSG,6,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,,,,,,,0732,2,0,0,0"},
		{"transmission type out of range", "MSG,9,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,,,,,,,,,,,"},
		{"transmission type missing for MSG", "MSG,,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,,,,,,,,,,,"},
		{"bad timestamp", "MSG,3,1,1,7C79B7,1,2017-03-25,10:41:45.365,2017/03/25,10:41:45.384,,2850,,,-34.84658,138.67962,,,,,,"},
		{"session id not numeric", "MSG,3,x,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,2850,,,-34.84658,138.67962,,,,,,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			if err == nil {
				t.Fatalf("Expected parse error for %q", tt.line)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Error does not match ErrMalformed: %v", err)
			}
		})
	}
}

// Semantic round-trip: serializing a parsed message and parsing the result
// yields an equal message, for every message type.
func TestRoundTrip(t *testing.T) {
	lines := []string{
		testLine,
		"MSG,1,1,1,4CA4E8,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,RYR72E  ,,,,,,,,,,,",
		"MSG,2,5,211,4D0262,6573,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,2000,154.6,309.2,54.12345,-4.56789,,,,,,1",
		"MSG,4,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,,273.8,169.4,,,-832,,,,,",
		"MSG,5,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,10250,,,,,,,0,,0,",
		"MSG,6,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,,,,,,,7220,1,0,1,0",
		"MSG,7,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,36975,,,,,,,,,,0",
		"MSG,8,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,,,,,,,,,,,0",
		"SEL,,496,2286,4CA4E5,27215,2010/02/19,18:06:07.710,2010/02/19,18:06:07.710,RYR1427",
		"ID,,496,7162,405637,27928,2010/02/19,18:06:07.115,2010/02/19,18:06:07.115,EZY691A",
		"AIR,,496,5906,400F01,27931,2010/02/19,18:06:07.128,2010/02/19,18:06:07.128",
		"STA,,5,179,400AE7,10103,2008/11/28,14:58:51.153,2008/11/28,14:58:51.153,RM",
		"CLK,,496,-1,,-1,2010/02/19,18:18:19.036,2010/02/19,18:18:19.036",
	}

	for _, line := range lines {
		first, err := ParseLine(line)
		if err != nil {
			t.Errorf("ParseLine(%q) failed: %v", line, err)
			continue
		}

		out := Serialize(first)
		second, err := ParseLine(out)
		if err != nil {
			t.Errorf("Re-parse of %q failed: %v", out, err)
			continue
		}

		if !reflect.DeepEqual(first, second) {
			t.Errorf("Round-trip mismatch for %q:\n first: %+v\nsecond: %+v", line, first, second)
		}
	}
}

func TestSerialize_FieldCountsPerType(t *testing.T) {
	tests := []struct {
		line   string
		fields int
	}{
		{testLine, 22},
		{"SEL,,496,2286,4CA4E5,27215,2010/02/19,18:06:07.710,2010/02/19,18:06:07.710,RYR1427", 11},
		{"AIR,,496,5906,400F01,27931,2010/02/19,18:06:07.128,2010/02/19,18:06:07.128", 10},
	}

	for _, tt := range tests {
		msg, err := ParseLine(tt.line)
		if err != nil {
			t.Fatalf("ParseLine(%q) failed: %v", tt.line, err)
		}
		out := Serialize(msg)
		got := len(splitFields(out))
		if got != tt.fields {
			t.Errorf("Serialize produced %d fields for %s, want %d", got, msg.Type, tt.fields)
		}
	}
}

func splitFields(line string) []string {
	var fields []string
	start := 0
	for i := 0; i <= len(line); i++ {
		if i == len(line) || line[i] == ',' {
			fields = append(fields, line[start:i])
			start = i + 1
		}
	}
	return fields
}

func TestMessageType_Codes(t *testing.T) {
	for code, mt := range messageTypeCodes {
		if mt.Code() != code {
			t.Errorf("Code() for %v = %q, want %q", mt, mt.Code(), code)
		}
	}
	if MessageType(0).Code() != "" {
		t.Errorf("Expected empty code for zero MessageType")
	}
}
