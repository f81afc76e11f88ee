package security

import (
	"strings"
	"testing"
)

// TestText_StripsMarkup はHTMLが除去されテキストのみ残ることを検証する。
func TestText_StripsMarkup(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "権限が不足しています", "権限が不足しています"},
		{"scriptタグは中身ごと除去", `理由<script>alert("x")</script>です`, "理由です"},
		{"装飾タグはテキストを残す", "<b>重要</b>な<em>理由</em>", "重要な理由"},
		{"イベント属性付きタグ", `<img src=x onerror="alert(1)">画像`, "画像"},
		{"不等号はテキストとして残る", "a < b", "a < b"},
		{"アンパサンドは復元される", "R&D チーム", "R&D チーム"},
		{"前後の空白を除去", "  \n 却下 \t ", "却下"},
		{"制御文字を除去", "ab\x1bc\x07d", "abcd"},
		{"改行は保持", "1行目\n2行目", "1行目\n2行目"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Text(tt.input, 0); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestText_TruncatesByRune は文字数上限がルーン単位で適用されることを検証する。
func TestText_TruncatesByRune(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.Text(strings.Repeat("あ", 10), 4)
	if got != "ああああ" {
		t.Errorf("got %q, want 4 runes", got)
	}

	if got := sanitizer.Text("short", 100); got != "short" {
		t.Errorf("got %q, want %q", got, "short")
	}
}

// TestText_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestText_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	input := `<p>却下: <a href="https://example.com">詳細</a></p>`

	first := sanitizer.Text(input, 0)
	second := sanitizer.Text(first, 0)
	if first != second {
		t.Errorf("not idempotent: %q != %q", first, second)
	}
}

// TestValidateLinkURL は連絡先リンクの検証を確認する。
func TestValidateLinkURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://wiki.example.com/team", false},
		{"http", "http://intranet.local/help", false},
		{"mailto", "mailto:it-help@example.com", false},
		{"空文字列", "", true},
		{"javascriptスキーム", "javascript:alert(1)", true},
		{"dataスキーム", "data:text/html,<b>x</b>", true},
		{"相対URL", "/contacts", true},
		{"ホストなし", "https://", true},
		{"宛先なしmailto", "mailto:", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLinkURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLinkURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
