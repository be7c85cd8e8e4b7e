package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"testing"
)

type setupType struct {
	logger *RelayLogger
	buffer bytes.Buffer
}

func beforeEach(t *testing.T) *setupType {
	var r setupType

	err := InitLoggerWithWriter("info", "json", &r.buffer, false)
	if err != nil {
		t.Fatal(err)
	}

	r.logger = GetLogger()

	return &r
}

type logType struct {
	Time   string
	Level  string
	Source struct {
		Function string
		File     string
		Line     int
	}
	Msg       string
	Stack     string
	Error     string
	Module    string
	Validator string
	Nonce     uint32
}

func parseResult(setup *setupType, t *testing.T) (string, logType) {
	raw := setup.buffer.String()
	var parsed logType

	err := json.Unmarshal(setup.buffer.Bytes(), &parsed)
	if err != nil {
		t.Fatalf("fail to parse log: %v: %s", err, raw)
	}

	return raw, parsed
}

func TestLogLevel(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.log(slog.LevelDebug, 0, "test")
	if 0 < setup.buffer.Len() {
		t.Fatalf("debug log is output: %s", setup.buffer.String())
	}
}

func TestLogLog(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.log(slog.LevelInfo, 0, "test")
	raw, r := parseResult(setup, t)

	if r.Level != "INFO" {
		t.Fatalf("mismatch level: %s", raw)
	}

	if m, err := regexp.MatchString(`/log.TestLogLog$`, r.Source.Function); err != nil || !m {
		t.Fatalf("mismatch source.function: %v", raw)
	}
}

func TestLogError(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.Error("testerr", fmt.Errorf("dummy"))
	raw, r := parseResult(setup, t)

	if r.Level != "ERROR" {
		t.Fatalf("mismatch level: %s", raw)
	}

	if m, err := regexp.MatchString(`/log.TestLogError$`, r.Source.Function); err != nil || !m {
		t.Fatalf("mismatch source.function: %v", raw)
	}

	if r.Error != "dummy" {
		t.Fatalf("mismatch level: %s", raw)
	}
}

func TestLogErrorContextWithFields(t *testing.T) {
	setup := beforeEach(t)

	logger := setup.logger.WithModule("core.correlation").WithValidator("0xaa", "file:///tmp").WithNonce(5)
	logger.ErrorContext(context.Background(), "fetch failed", fmt.Errorf("timeout"))
	raw, r := parseResult(setup, t)

	if r.Module != "core.correlation" || r.Validator != "0xaa" || r.Nonce != 5 {
		t.Fatalf("mismatch fields: %s", raw)
	}
	if m, err := regexp.MatchString(`/log.TestLogErrorContextWithFields$`, r.Source.Function); err != nil || !m {
		t.Fatalf("mismatch source.function: %v", raw)
	}
	if !strings.Contains(r.Stack, "timeout") {
		t.Fatalf("missing stack: %s", raw)
	}
}

func TestInitLoggerErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := InitLoggerWithWriter("verbose", "json", &buf, false); err == nil {
		t.Fatal("invalid level accepted")
	}
	if err := InitLoggerWithWriter("info", "xml", &buf, false); err == nil {
		t.Fatal("invalid format accepted")
	}
	if err := InitLogger("info", "json", "syslog", false); err == nil {
		t.Fatal("invalid output accepted")
	}
}
