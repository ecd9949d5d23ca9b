package utils

// MaskSecret hides a token for logging. Short secrets are masked entirely,
// longer ones keep a 4 character prefix to tell them apart.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "*****"
	default:
		return s[:4] + "*****"
	}
}
