// Package pathcodec converts between an absolute filesystem path and the
// directory-name-safe encoding used to name a project's session
// directory. It has no internal imports, matching the teacher's
// pure-function paths package convention.
package pathcodec

import "strings"

// Encode maps an absolute path to a directory-name-safe form: path
// separators become a single dash, and a leading Windows drive letter
// "X:\" or "X:/" becomes "X--" (the colon becomes a dash, and the
// separator that followed it becomes a second dash).
func Encode(decoded string) string {
	if letter, rest, ok := splitDriveLetter(decoded); ok {
		return letter + "--" + replaceSeparators(rest)
	}
	return replaceSeparators(decoded)
}

// Decode inverts Encode. A leading "X--" (single letter followed by two
// dashes) is restored to "X:\"; otherwise every dash is restored to a
// forward slash and a leading slash is ensured.
func Decode(encoded string) string {
	if letter, rest, ok := splitEncodedDriveLetter(encoded); ok {
		return letter + ":\\" + strings.ReplaceAll(rest, "-", "\\")
	}
	path := strings.ReplaceAll(encoded, "-", "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// ProjectName returns the last non-empty path segment of a decoded path.
func ProjectName(decoded string) string {
	segments := strings.FieldsFunc(decoded, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// splitDriveLetter detects "X:\" or "X:/" at the start of a decoded path.
func splitDriveLetter(path string) (letter, rest string, ok bool) {
	if len(path) < 3 {
		return "", "", false
	}
	c := path[0]
	isLetter := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
	if !isLetter || path[1] != ':' {
		return "", "", false
	}
	if path[2] != '/' && path[2] != '\\' {
		return "", "", false
	}
	return path[0:1], path[3:], true
}

// splitEncodedDriveLetter detects the "X--" prefix Encode produces for a
// Windows drive letter.
func splitEncodedDriveLetter(encoded string) (letter, rest string, ok bool) {
	if len(encoded) < 3 {
		return "", "", false
	}
	c := encoded[0]
	isLetter := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
	if !isLetter || encoded[1] != '-' || encoded[2] != '-' {
		return "", "", false
	}
	return encoded[0:1], encoded[3:], true
}

// replaceSeparators turns every '/' or '\' into a single '-'.
func replaceSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '/' || r == '\\' {
			b.WriteByte('-')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
