package reading

import (
	"encoding/json"
	"testing"
)

func TestReadingLine(t *testing.T) {
	r := Reading{Soil: 395, Temp: 22.9, Hum: 19, MQ2: 85, Rain: 1020, Bio: 513}
	want := "STATE;soil=395;temp=22.9;hum=19.0;mq2=85;rain=1020;bio=513"
	if got := r.Line(); got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestNewPayloadEncoding(t *testing.T) {
	p := NewPayload(Reading{Soil: 395, Temp: 22.9, Hum: 19, MQ2: 85, Rain: 1020, Bio: 513})
	want := `{"line":"STATE;soil=395;temp=22.9;hum=19.0;mq2=85;rain=1020;bio=513","json":{"soil":395,"temp":22.9,"hum":19.0,"mq2":85,"rain":1020,"bio":513}}`
	if got := p.String(); got != want {
		t.Errorf("payload = %s\nwant      %s", got, want)
	}

	// The encoding must itself be a valid candidate that round-trips.
	again, err := Validate(p.Bytes())
	if err != nil {
		t.Fatalf("Validate(encoded) error = %v", err)
	}
	if again.String() != p.String() {
		t.Errorf("re-validated payload differs: %s", again)
	}
}

func TestPayloadMarshalJSON(t *testing.T) {
	p := NewPayload(Reading{Soil: 1, Temp: -3.5, Hum: 40.25, MQ2: 2, Rain: 3, Bio: 4})

	wrapped, err := json.Marshal(map[string]any{"payload": p})
	if err != nil {
		t.Fatalf("json.Marshal error = %v", err)
	}
	want := `{"payload":` + p.String() + `}`
	if string(wrapped) != want {
		t.Errorf("json.Marshal = %s, want %s", wrapped, want)
	}

	var zero Payload
	if !zero.IsZero() {
		t.Error("zero Payload should report IsZero")
	}
	data, _ := zero.MarshalJSON()
	if string(data) != "null" {
		t.Errorf("zero MarshalJSON = %s, want null", data)
	}
}

func TestKeys(t *testing.T) {
	want := []string{"soil", "temp", "hum", "mq2", "rain", "bio"}
	got := Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
