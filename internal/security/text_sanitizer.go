// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は申請の却下理由やチーム名などの自由記述テキストから
// HTMLを除去し、プレーンテキストとして保存できる形に正規化する。
package security

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由記述テキストのサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Text はHTMLタグと制御文字を除去し、前後の空白を取り除いたテキストを返す。
	// maxRunesが0より大きい場合はその文字数で切り詰める。
	Text(raw string, maxRunes int) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyは全タグを除去する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Text はプレーンテキストに正規化した文字列を返す。
func (s *textSanitizer) Text(raw string, maxRunes int) string {
	if raw == "" {
		return ""
	}

	// StrictPolicyの出力はエスケープ済みのため、保存用に戻す
	stripped := html.UnescapeString(s.policy.Sanitize(raw))

	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped)
	cleaned = strings.TrimSpace(cleaned)

	if maxRunes > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxRunes {
			cleaned = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return cleaned
}

// allowedLinkSchemes は連絡先リンクで許可されるスキーム。
var allowedLinkSchemes = []string{"http", "https", "mailto"}

// ValidateLinkURL は連絡先リンクとして表示するURLを静的に検証する。
// javascript:等のスキームや相対URLを拒否する。
func ValidateLinkURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	allowed := false
	for _, s := range allowedLinkSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedLinkSchemes)
	}

	if scheme == "mailto" {
		if parsed.Opaque == "" || !strings.Contains(parsed.Opaque, "@") {
			return fmt.Errorf("invalid mailto address: %s", rawURL)
		}
		return nil
	}

	if parsed.Hostname() == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	return nil
}
