package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const deviceLog = "boot v1.2\r\n" +
	`{"line":"STATE;soil=395;temp=22.9;hum=19.0;mq2=85;rain=1020;bio=513","json":{"soil":395,"temp":22.9,"hum":19.0,"mq2":85,"rain":1020,"bio":513}}` + "\r\n" +
	"sensor warmup\r\n" +
	`{"line":"STATE;soil=1","json":{"soil":1}}` + "\r\n" +
	`{"line":"STATE;soil=400;temp=23;hum=20;mq2=80;rain=1000;bio=500","json":{"soil":400,"temp":23,"hum":20,"mq2":80,"rain":1000,"bio":500}}` + "\r\n" +
	`{"line":"STATE;soil=`

func TestReplay(t *testing.T) {
	var out, errOut bytes.Buffer
	stats, err := replay(strings.NewReader(deviceLog), &out, &errOut, 4096)
	if err != nil {
		t.Fatal(err)
	}

	if stats != (replayStats{accepted: 2, rejected: 1, discarded: 1}) {
		t.Errorf("stats = %+v", stats)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout lines = %d, want 2:\n%s", len(lines), out.String())
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("line is not JSON: %s", line)
		}
	}
	if !strings.Contains(lines[1], `"temp":23.0`) {
		t.Errorf("second reading should be canonical: %s", lines[1])
	}
	if !strings.Contains(errOut.String(), "rejected: E104") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestReplayCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	if err := os.WriteFile(path, []byte(deviceLog), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"replay", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.Count(out.String(), "\n"); got != 2 {
		t.Errorf("accepted lines = %d, want 2", got)
	}
	if !strings.Contains(errOut.String(), "2 accepted, 1 rejected, 1 discarded") {
		t.Errorf("summary missing from stderr: %q", errOut.String())
	}
}

func TestReplayMissingFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"replay", filepath.Join(t.TempDir(), "nope.log")})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "E600") {
		t.Errorf("Execute() error = %v, want E600", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("debug", "json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hello", "component", "test")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("json output = %q", buf.String())
	}

	if _, err := newLogger("loud", "text", &buf); err == nil {
		t.Error("unknown level should fail")
	}
	if _, err := newLogger("info", "xml", &buf); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("SPROUT_HEARTBEAT", "2s")
	t.Setenv("PORT", "4000")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--format", "json", "--config", writeEmptyConfig(t)})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	var got struct {
		HTTP struct {
			Port int `json:"port"`
		} `json:"http"`
		Hub struct {
			Heartbeat string `json:"heartbeat"`
		} `json:"hub"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if got.HTTP.Port != 4000 || got.Hub.Heartbeat != "2s" {
		t.Errorf("config = %+v", got)
	}
}

func TestVersionShort(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version = %q, want %q", out.String(), version)
	}
}

func writeEmptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sprout.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
