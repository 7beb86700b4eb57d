package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Stdout
	Stdout = &buf
	t.Cleanup(func() { Stdout = prev })
	return &buf
}

func TestPrintJSON(t *testing.T) {
	buf := capture(t)
	if err := PrintJSON("process", map[string]int{"updated": 2}); err != nil {
		t.Fatal(err)
	}

	var result JSONResult
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.OK || result.Command != "process" || result.Version == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestPrintJSONError(t *testing.T) {
	buf := capture(t)
	if err := PrintJSONError("process", errors.New("file not found"), ExitUserError); err != nil {
		t.Fatal(err)
	}

	var result JSONResult
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.OK || result.Error != "file not found" || result.Code != ExitUserError {
		t.Errorf("result = %+v", result)
	}
}
