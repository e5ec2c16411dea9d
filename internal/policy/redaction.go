package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	ibanPattern  = regexp.MustCompile(`\b[A-Z]{2}\d{2}(?:[ ]?[A-Z0-9]{4}){3,7}\b`)
	// Long digit runs cover card numbers and the 15-digit numéro de sécurité
	// sociale seniors often read out loud.
	digitRunPattern = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	// French national (0x xx xx xx xx) and international (+33 ...) phone forms.
	phonePattern = regexp.MustCompile(`(?:\+33[ .\-]?|0)[1-9](?:[ .\-]?\d{2}){4}`)
)

// RedactPII masks common high-risk PII patterns before a transcript leaves the
// live session (archiving, logs). The in-memory conversation is never altered.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[EMAIL]")
	changed = changed || next != out
	out = next

	next = ibanPattern.ReplaceAllString(out, "[IBAN]")
	changed = changed || next != out
	out = next

	// Digit runs before phones so card and insee numbers are not half-matched
	// as phone numbers.
	next = digitRunPattern.ReplaceAllString(out, "[NUMERO]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[TELEPHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}
