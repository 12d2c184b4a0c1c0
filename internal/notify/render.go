package notify

import (
	"strings"
	"time"
)

// Render — буквальная подстановка {плейсхолдеров}, сознательно без
// шаблонизатора: неизвестные плейсхолдеры остаются в тексте как есть.
func Render(tmpl string, repl map[string]string) string {
	out := tmpl
	for key, val := range repl {
		out = strings.ReplaceAll(out, "{"+key+"}", val)
	}
	return out
}

// FormatDate — дата в сообщениях родителям.
func FormatDate(d time.Time) string {
	return d.Format("02.01.2006")
}
