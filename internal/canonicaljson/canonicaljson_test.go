package canonicaljson

import "testing"

func TestMarshal_SortsObjectKeys(t *testing.T) {
	v, err := Decode([]byte(`{"b":1,"a":2}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"a":2,"b":1}`
	if string(got) != want {
		t.Fatalf("marshal = %s, want %s", got, want)
	}
}

func TestMarshal_StripsInsignificantWhitespace(t *testing.T) {
	v, err := Decode([]byte(`{  "a" :   1  ,  "b": [1,  2,3]  }`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"a":1,"b":[1,2,3]}`
	if string(got) != want {
		t.Fatalf("marshal = %s, want %s", got, want)
	}
}

func TestMarshal_DifferentKeyOrderProducesIdenticalBytes(t *testing.T) {
	v1, err := Decode([]byte(`{"amount":100,"txid":"T1"}`))
	if err != nil {
		t.Fatalf("decode v1: %v", err)
	}
	v2, err := Decode([]byte(`{"txid":"T1","amount":100}`))
	if err != nil {
		t.Fatalf("decode v2: %v", err)
	}

	b1, err := Marshal(v1)
	if err != nil {
		t.Fatalf("marshal v1: %v", err)
	}
	b2, err := Marshal(v2)
	if err != nil {
		t.Fatalf("marshal v2: %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("reordered keys produced different bytes: %s vs %s", b1, b2)
	}
}

func TestMarshal_RejectsFloats(t *testing.T) {
	_, err := Marshal(map[string]interface{}{"amount": 1.5})
	if err == nil {
		t.Fatal("expected an error for a float64 value")
	}
}

func TestMarshal_PreservesIntegerAmountsAsJSONNumbers(t *testing.T) {
	v, err := Decode([]byte(`{"amount":100000000000}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"amount":100000000000}`
	if string(got) != want {
		t.Fatalf("marshal = %s, want %s (no float rounding)", got, want)
	}
}
