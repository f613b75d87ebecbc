package domain

import "strings"

var codeReplacer = strings.NewReplacer(
	".", "_",
	"#", "_",
	"$", "_",
	"[", "_",
	"]", "_",
	"/", "_",
)

// NormalizeCode trims a transaction code and replaces characters that are
// not allowed in a storage key. NormalizeCode(NormalizeCode(x)) == NormalizeCode(x).
func NormalizeCode(code string) string {
	return codeReplacer.Replace(strings.TrimSpace(code))
}

// ValidCode reports whether the code is usable as a join key
func ValidCode(code string) bool {
	return NormalizeCode(code) != ""
}
