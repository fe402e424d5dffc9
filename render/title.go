package render

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SplitTitleIntoLines packs words greedily into lines of at most maxChars
// characters, keeping at most maxTitleLines lines. Words are never split; a
// single word longer than maxChars gets a line of its own. Words that do not
// fit in the last line are dropped.
func SplitTitleIntoLines(title string, maxChars int) []string {
	words := strings.Fields(title)
	var lines []string
	current, n := "", 0
	for _, w := range words {
		wn := utf8.RuneCountInString(w)
		switch {
		case current == "":
			current, n = w, wn
		case n+1+wn <= maxChars:
			current += " " + w
			n += 1 + wn
		default:
			lines = append(lines, current)
			current, n = w, wn
		}
		if len(lines) == maxTitleLines {
			return lines
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

var drawtextEscaper = strings.NewReplacer(
	`\`, `\\\\`,
	`'`, `'\\\''`,
	`%`, `\\%`,
	`:`, `\:`,
	"\n", "",
	"\r", "",
)

// EscapeDrawtext escapes s for use inside a single-quoted drawtext text value.
func EscapeDrawtext(s string) string {
	return drawtextEscaper.Replace(s)
}

var filterPathEscaper = strings.NewReplacer(
	`\`, `\\\\`,
	`'`, `'\\\''`,
	`:`, `\:`,
)

// quotes a path for use as a filter option value, escaped for both the
// option and the filtergraph level
func quoteFilterPath(p string) string {
	return "'" + filterPathEscaper.Replace(p) + "'"
}

// titleFilters returns one drawtext filter per title line. The title is fully
// opaque for the first 9 seconds, fades out over the 10th and is not drawn
// afterwards.
func (r *Renderer) titleFilters(title string) []string {
	lines := SplitTitleIntoLines(title, r.cfg.MaxLineChars)
	filters := make([]string, 0, len(lines))
	for i, line := range lines {
		f := "drawtext="
		if r.cfg.FontFile != "" {
			f += fmt.Sprintf("fontfile=%s:", quoteFilterPath(r.cfg.FontFile))
		}
		f += fmt.Sprintf("text='%s':fontsize=%d:fontcolor=white:borderw=%d:bordercolor=black:x=(w-text_w)/2:y=%d",
			EscapeDrawtext(line), r.cfg.FontSize, r.cfg.BorderWidth, r.cfg.TopOffset+i*r.cfg.LineSpacing)
		f += ":enable='lt(t,10)':alpha='if(lt(t,9),1,10-t)'"
		filters = append(filters, f)
	}
	return filters
}

// baseFilter crops the largest centered 9:16 window and scales it to the
// output size, optionally burning in subtitles.
func (r *Renderer) baseFilter(subtitlePath string) string {
	chain := []string{
		"crop='min(iw,ih*9/16)':'min(ih,iw*16/9)'",
		fmt.Sprintf("scale=%d:%d", r.cfg.Width, r.cfg.Height),
		"setsar=1",
	}
	if subtitlePath != "" {
		chain = append(chain, fmt.Sprintf("subtitles=%s:force_style='Fontsize=14,Outline=2,Alignment=2,MarginV=60'",
			quoteFilterPath(subtitlePath)))
	}
	return strings.Join(chain, ",")
}
