package ss

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/John-Robertt/surge-balancer/internal/model"
)

func TestParseSubscription_Base64List(t *testing.T) {
	raw := strings.Join([]string{
		"ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388#Node%201",
		"vmess://ignored",
		"",
		"ss://YWVzLTEyOC1nY206cDI=@example.com:8389#Node%202",
	}, "\n")
	b64 := base64.StdEncoding.EncodeToString([]byte(raw))

	proxies, err := ParseSubscription("https://example.com/sub", b64, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proxies) != 2 {
		t.Fatalf("len=%d, want=2", len(proxies))
	}
	if proxies[0].Name != "Node 1" {
		t.Fatalf("name=%q, want=%q", proxies[0].Name, "Node 1")
	}
	if proxies[1].Server != "example.com" || proxies[1].Port != 8389 {
		t.Fatalf("server/port=%q/%d, want example.com/8389", proxies[1].Server, proxies[1].Port)
	}
	if proxies[0].UDPRelay != nil {
		t.Fatalf("udp relay should stay unset")
	}
}

func TestParseSubscription_RawListAndUDPRelay(t *testing.T) {
	raw := "ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388#A\r\nss://YWVzLTEyOC1nY206cGFzcw==@example.org:8388#B\r\n"
	proxies, err := ParseSubscription("https://example.com/sub", raw, model.Bool(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proxies) != 2 {
		t.Fatalf("len=%d, want=2", len(proxies))
	}
	for _, p := range proxies {
		if p.UDPRelay == nil || !*p.UDPRelay {
			t.Fatalf("udp relay not copied onto %q", p.Name)
		}
	}
}

func TestParseSubscription_Empty(t *testing.T) {
	proxies, err := ParseSubscription("https://example.com/sub", "  \n", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proxies) != 0 {
		t.Fatalf("len=%d, want=0", len(proxies))
	}
}

func TestParseSubscription_NotBase64(t *testing.T) {
	_, err := ParseSubscription("https://example.com/sub", "!!not base64!!", nil)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if pe.AppError.Code != "SUB_BASE64_DECODE_ERROR" {
		t.Fatalf("code=%q, want=%q", pe.AppError.Code, "SUB_BASE64_DECODE_ERROR")
	}
}

func TestParseSubscription_BadLineFailsBody(t *testing.T) {
	raw := "ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388#ok\nss://YWVzLTEyOC1nY206cGFzcw==@example.com:99999#bad\n"
	_, err := ParseSubscription("https://example.com/sub", raw, nil)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if pe.AppError.Line != 2 {
		t.Fatalf("line=%d, want=2", pe.AppError.Line)
	}
	if pe.AppError.Stage != "parse_sub" {
		t.Fatalf("stage=%q, want=%q", pe.AppError.Stage, "parse_sub")
	}
	if pe.AppError.Snippet == "" {
		t.Fatalf("snippet should not be empty")
	}
}

func TestParseURI_SIP002_Plugin(t *testing.T) {
	line := "ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388/?plugin=simple-obfs%3Bobfs%3Dtls%3Bobfs-host%3Dexample.com&group=abc#obfs"
	p, err := ParseURI("", 1, line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PluginName != "simple-obfs" {
		t.Fatalf("plugin=%q, want=%q", p.PluginName, "simple-obfs")
	}
	if len(p.PluginOpts) != 2 {
		t.Fatalf("opts len=%d, want=2", len(p.PluginOpts))
	}
	if p.PluginOpts[1] != (model.KV{Key: "obfs-host", Value: "example.com"}) {
		t.Fatalf("opt1=%+v, want obfs-host=example.com", p.PluginOpts[1])
	}
}

func TestParseURI_LegacyForm(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("aes-128-gcm:pass@ex.com:443"))
	p, err := ParseURI("", 1, "ss://"+b64+"#old")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Cipher != "aes-128-gcm" || p.Password != "pass" {
		t.Fatalf("cipher/password=%q/%q, want aes-128-gcm/pass", p.Cipher, p.Password)
	}
	if p.Server != "ex.com" || p.Port != 443 {
		t.Fatalf("server/port=%q/%d, want ex.com/443", p.Server, p.Port)
	}
}

func TestParseURI_PlainUserinfo(t *testing.T) {
	p, err := ParseURI("", 1, "ss://2022-blake3-aes-128-gcm:a2V5@[::1]:8388#v6")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Cipher != "2022-blake3-aes-128-gcm" || p.Server != "::1" {
		t.Fatalf("cipher/server=%q/%q", p.Cipher, p.Server)
	}
}
