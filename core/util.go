package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// TitleCase trims `s` and upper-cases the first letter of each word, lowering the rest.
// "  jane SMITH " -> "Jane Smith"
func TitleCase(s string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(s))
}

// Capitalize trims `s`, upper-cases its first letter and lowers the rest.
// "fEMALE" -> "Female"
func Capitalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Getwd finds the project root: the closest parent directory holding a go.mod file.
// go test runs in the package directory, which breaks relative paths to config & assets.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
