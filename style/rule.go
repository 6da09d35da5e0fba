package style

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// EmptyImage is the declaration value used when no safe image is available.
const EmptyImage = "linear-gradient(#0000, #0000)"

// DefaultVariant is used when a rule is registered without a variant.
const DefaultVariant = "duotone"

// Base rules inserted into every new sheet, ahead of any icon rule.
var baseRules = []string{
	`@property --icon-image { syntax: "<image>"; inherits: true; initial-value: linear-gradient(#0000, #0000); }`,
	`:where(ui-icon), :host(ui-icon) { --icon-image: linear-gradient(#0000, #0000); }`,
	`:where(ui-icon:not([icon])), :where(ui-icon[icon=""]), :host(ui-icon:not([icon])), :host(ui-icon[icon=""]) { background-color: transparent; }`,
}

// RuleKey identifies one icon rule.
type RuleKey struct {
	Variant string
	Name    string
	Bucket  int
}

// NewRuleKey normalizes name and variant into a key.
func NewRuleKey(name, variant string, bucket int) RuleKey {
	return RuleKey{Variant: normalizeVariant(variant), Name: strings.TrimSpace(name), Bucket: bucket}
}

// String renders the key as "variant:name@bucket".
func (k RuleKey) String() string {
	return k.Variant + ":" + k.Name + "@" + strconv.Itoa(k.Bucket)
}

// ParseRuleKey parses the form produced by RuleKey.String.
func ParseRuleKey(s string) (RuleKey, error) {
	variant, rest, ok := strings.Cut(s, ":")
	if !ok || variant == "" {
		return RuleKey{}, fmt.Errorf("rule key %q: missing variant", s)
	}
	at := strings.LastIndexByte(rest, '@')
	if at <= 0 {
		return RuleKey{}, fmt.Errorf("rule key %q: missing bucket", s)
	}
	bucket, err := strconv.Atoi(rest[at+1:])
	if err != nil {
		return RuleKey{}, fmt.Errorf("rule key %q: %w", s, err)
	}
	return RuleKey{Variant: variant, Name: rest[:at], Bucket: bucket}, nil
}

// Rule is one generated icon rule.
type Rule struct {
	Key         RuleKey
	Selector    string
	Declaration string
	// Ref is the image reference the declaration points at, or "" for the
	// empty image.
	Ref string
}

// Text renders the rule for insertion into a sheet.
func (r Rule) Text() string {
	return r.Selector + " { " + r.Declaration + " }"
}

func normalizeVariant(variant string) string {
	v := strings.ToLower(strings.TrimSpace(variant))
	if v == "" {
		return DefaultVariant
	}
	return v
}

// Selector builds the selector matching icons with the given name and variant,
// in the light DOM and as a shadow host.
func Selector(name, variant string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	n := Escape(name)
	v := Escape(normalizeVariant(variant))
	inner := `.ui-icon[icon="` + n + `"][icon-style="` + v + `"]`
	return inner + ", :host(" + inner + ")"
}

// Declaration builds the custom property declaration for an image value.
func Declaration(value string) string {
	return "--icon-image: " + value + ";"
}

// URLValue renders ref as a CSS url() value.
func URLValue(ref string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `, "\r", `\d `)
	return `url("` + r.Replace(ref) + `")`
}

var cssURL = regexp.MustCompile(`(?i)url\(\s*(['"]?)([^'")\s]+)['"]?\s*\)`)

// FirstURL returns the first url() argument in css, or "".
func FirstURL(css string) string {
	m := cssURL.FindStringSubmatch(css)
	if m == nil {
		return ""
	}
	return m[2]
}

// Escape escapes s for use as a CSS identifier or attribute value, following
// the CSSOM serialize-an-identifier rules.
func Escape(s string) string {
	var b strings.Builder
	first := true
	prevDash := false
	for i, r := range s {
		switch {
		case r == 0:
			b.WriteRune(utf8.RuneError)
		case (r >= 0x01 && r <= 0x1f) || r == 0x7f:
			fmt.Fprintf(&b, `\%x `, r)
		case r >= '0' && r <= '9' && (first || (i == 1 && prevDash)):
			fmt.Fprintf(&b, `\%x `, r)
		case r == '-' && first && len(s) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
		prevDash = first && r == '-'
		first = false
	}
	return b.String()
}
