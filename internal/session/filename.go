package session

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"tubedl/internal/consts"
	"tubedl/internal/entity"
)

var titleReplacer = strings.NewReplacer(
	`\`, "", "/", "", "*", "", "?", "", ":", "", `"`, "", "<", "", ">", "", "|", "",
)

// Sanitize turns a title into a filesystem-safe base name of at most
// consts.DefaultFilenameMaxLen runes. Any whitespace becomes an underscore.
func Sanitize(title string) string {
	s := titleReplacer.Replace(title)

	var (
		b strings.Builder
		n int
	)

	for _, r := range s {
		if n == consts.DefaultFilenameMaxLen {
			break
		}

		switch {
		case unicode.IsSpace(r):
			r = '_'
		case unicode.IsControl(r):
			continue
		}

		b.WriteRune(r)
		n++
	}

	return b.String()
}

// FilenameBase is the sanitized title, falling back to the content id.
func FilenameBase(video *entity.Video) string {
	base := Sanitize(video.Title)
	if strings.Trim(base, "._") == "" {
		base = Sanitize(video.ID)
	}

	return base
}

// Filename builds `<base>[_<resolution>].<container>`. Only video downloads
// carry the resolution suffix. The base is cut so the name plus the
// in-progress suffix fits consts.MaxFilenameBytes.
func Filename(video *entity.Video, variant entity.Variant, kind entity.MediaKind) string {
	var suffix string

	if kind == entity.MediaKindVideo && variant.Quality != "" {
		suffix = "_" + Sanitize(variant.Quality)
	}

	ext := variant.Container
	if ext == "" {
		ext = "bin"
	}

	suffix += "." + ext

	budget := consts.MaxFilenameBytes - len(consts.PartSuffix) - len(suffix)

	return truncateBytes(FilenameBase(video), budget) + suffix
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}

	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}
