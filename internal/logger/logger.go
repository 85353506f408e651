// Package logger はslogのJSON構造化ログを構成する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redacted は秘匿属性の値を置き換える文字列。
const redacted = "[REDACTED]"

// secretKeys はログに値を出してはならない属性キー（小文字）。
var secretKeys = map[string]bool{
	"access_token":   true,
	"refresh_token":  true,
	"provider_token": true,
	"api_token":      true,
	"apikey":         true,
	"authorization":  true,
	"password":       true,
	"cookie":         true,
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// levelには debug, info, warn, error を指定する（不明な値はinfo）。
// トークン類の属性は値が伏せられる。
func Setup(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redactSecrets,
	})
	return slog.New(handler)
}

// SetupDefault はSetupのロガーをグローバルロガーとして設定する。
// writerがnilの場合はos.Stderrに出力する。
// CLIの標準出力はコマンド結果に使うため、ログは既定でStderrへ出す。
func SetupDefault(w io.Writer, level string) {
	if w == nil {
		w = os.Stderr
	}
	slog.SetDefault(Setup(w, level))
}

// ParseLevel はログレベル文字列をslog.Levelに変換する。
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		if strings.EqualFold(strings.TrimSpace(level), "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return l
}

func redactSecrets(groups []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, redacted)
	}
	return a
}
