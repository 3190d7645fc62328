package file

import (
	"path/filepath"
	"strings"
)

func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return filepath.Join(dir, filename+ext)
	}
	return filepath.Join(dir, filename[:lastDot]+ext)
}

// LanguageSuffix turns a language name into a file name segment,
// e.g. "Chinese (Traditional)" -> "chinese-traditional".
func LanguageSuffix(lang string) string {
	fields := strings.FieldsFunc(strings.ToLower(lang), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "-")
}

// OutputPath names the translation of src: "ep1.srt" -> "ep1.<lang>.srt".
func OutputPath(src, lang string) string {
	return ReplaceExt(src, LanguageSuffix(lang)+filepath.Ext(src))
}

// IsOutputPath reports whether path already carries the suffix of lang.
func IsOutputPath(path, lang string) bool {
	suffix := "." + LanguageSuffix(lang) + filepath.Ext(path)
	return strings.HasSuffix(strings.ToLower(filepath.Base(path)), suffix)
}
