package usecase

import (
	"regexp"
	"strings"

	"lpr_backend/internal/feature/recognition/domain/entity"
)

const (
	// MinPlateChars はプレート文字列として扱う最小文字数です。
	MinPlateChars = 3
	// combineMinConfidence は複数行を連結する際に必要な平均信頼度です。
	combineMinConfidence = 0.3
)

var nonPlateChars = regexp.MustCompile(`[^A-Z0-9]`)

// NormalizePlateText は大文字化し、英数字以外の文字を取り除きます。
func NormalizePlateText(s string) string {
	return nonPlateChars.ReplaceAllString(strings.ToUpper(s), "")
}

// selectPlateText はOCRの行からプレート文字列を1つ選びます。
// 最も信頼度の高い行を基本とし、複数行を連結した方が長く平均信頼度も十分な場合は連結結果を採用します
// （2段組みのプレート向け）。有効な行がなければokはfalseです。
func selectPlateText(lines []entity.TextLine) (text, raw string, confidence float64, ok bool) {
	type token struct {
		text, raw string
		conf      float64
	}
	var tokens []token
	for _, l := range lines {
		cleaned := NormalizePlateText(l.Text)
		if len(cleaned) >= MinPlateChars {
			tokens = append(tokens, token{text: cleaned, raw: l.Text, conf: l.Confidence})
		}
	}
	if len(tokens) == 0 {
		return "", "", 0, false
	}

	best := tokens[0]
	for _, t := range tokens[1:] {
		if t.conf > best.conf {
			best = t
		}
	}

	if len(tokens) > 1 {
		var texts, raws []string
		var sum float64
		for _, t := range tokens {
			texts = append(texts, t.text)
			raws = append(raws, t.raw)
			sum += t.conf
		}
		combined := strings.Join(texts, "")
		avg := sum / float64(len(tokens))
		if len(combined) > len(best.text) && avg > combineMinConfidence {
			best = token{text: combined, raw: strings.Join(raws, " "), conf: avg}
		}
	}
	return best.text, best.raw, best.conf, true
}
