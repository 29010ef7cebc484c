package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// validateName applies the checks shared by every declared name: it must be
// non-empty, bounded and free of control characters and path separators.
func validateName(kind, name string, code Code) error {
	if name == "" {
		return New(code, "%s cannot be empty", kind)
	}

	if len(name) > 256 {
		return New(code, "%s too long (max 256 characters)", kind)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(code, "%s contains invalid control characters", kind)
		}
	}

	dangerousPatterns := []string{
		"..",   // Empty segment
		"//",   // Double slash
		"\x00", // Null byte
		"\\",   // Backslash
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(code, "%s contains invalid characters: %q", kind, pattern)
		}
	}

	return nil
}

// symbolicNameRegex matches dotted symbolic names (com.example.bundle).
var symbolicNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// ValidateSymbolicName validates a revision symbolic name.
func ValidateSymbolicName(name string) error {
	if err := validateName("symbolic name", name, ErrCodeInvalidDeclaration); err != nil {
		return err
	}

	if !symbolicNameRegex.MatchString(name) {
		return New(ErrCodeInvalidDeclaration, "invalid symbolic name: %q", name)
	}

	return nil
}

// packageNameRegex matches package names. Dynamic import patterns may end in
// ".*" or be a lone "*"; those are checked by ValidatePackagePattern.
var packageNameRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// ValidatePackageName validates an exported or imported package name.
func ValidatePackageName(name string) error {
	if err := validateName("package name", name, ErrCodeInvalidDeclaration); err != nil {
		return err
	}

	if !packageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidDeclaration, "invalid package name: %q", name)
	}

	return nil
}

// ValidatePackagePattern validates a dynamic import pattern such as
// "com.example.*" or "*".
func ValidatePackagePattern(pattern string) error {
	if pattern == "*" {
		return nil
	}
	return ValidatePackageName(strings.TrimSuffix(pattern, ".*"))
}

// ValidatePath validates a relative file path for safety.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}
