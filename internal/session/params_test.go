package session

import "testing"

func TestBindParamsArrayForm(t *testing.T) {
	var args struct {
		Blocks int    `json:"0"`
		Mode   string `json:"1"`
	}
	if err := bindParams([]byte(`[6, "conservative"]`), &args); err != nil {
		t.Fatalf("bindParams: %v", err)
	}
	if args.Blocks != 6 || args.Mode != "conservative" {
		t.Fatalf("got Blocks=%d Mode=%q", args.Blocks, args.Mode)
	}
}

func TestBindParamsObjectForm(t *testing.T) {
	var args struct {
		Blocks int    `json:"blocks"`
		Mode   string `json:"mode"`
	}
	if err := bindParams([]byte(`{"blocks": 6, "mode": "economical"}`), &args); err != nil {
		t.Fatalf("bindParams: %v", err)
	}
	if args.Blocks != 6 || args.Mode != "economical" {
		t.Fatalf("got Blocks=%d Mode=%q", args.Blocks, args.Mode)
	}
}

// Trailing optional positional arguments may be omitted entirely.
func TestBindParamsArrayFormMissingTrailingArgs(t *testing.T) {
	var args struct {
		Blocks int    `json:"0"`
		Mode   string `json:"1"`
	}
	if err := bindParams([]byte(`[6]`), &args); err != nil {
		t.Fatalf("bindParams: %v", err)
	}
	if args.Blocks != 6 || args.Mode != "" {
		t.Fatalf("got Blocks=%d Mode=%q", args.Blocks, args.Mode)
	}
}

func TestBindParamsEmpty(t *testing.T) {
	var args struct {
		Blocks int `json:"0"`
	}
	if err := bindParams(nil, &args); err != nil {
		t.Fatalf("bindParams on empty params: %v", err)
	}
	if err := bindParams([]byte(``), &args); err != nil {
		t.Fatalf("bindParams on empty-string params: %v", err)
	}
}

func TestBindParamsMalformedArrayElementErrors(t *testing.T) {
	var args struct {
		Blocks int `json:"0"`
	}
	if err := bindParams([]byte(`["not-a-number"]`), &args); err == nil {
		t.Fatal("expected an error for a non-numeric blocks argument")
	}
}

func TestParseHexHash32(t *testing.T) {
	valid := "ab"
	for len(valid) < 64 {
		valid += "ab"
	}
	if _, err := parseHexHash32(valid); err != nil {
		t.Fatalf("expected a valid 32-byte hex hash to parse, got: %v", err)
	}
	if _, err := parseHexHash32("not-hex"); err == nil {
		t.Fatal("expected an error for a non-hex string")
	}
	if _, err := parseHexHash32("ab"); err == nil {
		t.Fatal("expected an error for a too-short hex string")
	}
}

func TestScripthashToHashX(t *testing.T) {
	valid := ""
	for len(valid) < 64 {
		valid += "cd"
	}
	hashX, err := scripthashToHashX(valid)
	if err != nil {
		t.Fatalf("scripthashToHashX: %v", err)
	}
	if hashX != valid {
		t.Fatalf("expected identity mapping, got %q", hashX)
	}
	if _, err := scripthashToHashX("zz"); err == nil {
		t.Fatal("expected an error for an invalid scripthash")
	}
}
