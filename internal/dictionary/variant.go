package dictionary

import "fmt"

// Variant identifies a supported dictionary language pair.
type Variant string

const (
	VariantKoreanChinese Variant = "ko-zh"
	VariantKoreanEnglish Variant = "ko-en"
)

// upstreamCodes maps a variant to the dictionary code and language parameter
// the upstream API expects.
var upstreamCodes = map[Variant]struct {
	dictCode string
	lang     string
}{
	VariantKoreanChinese: {dictCode: "kozh", lang: "zh_CN"},
	VariantKoreanEnglish: {dictCode: "koen", lang: "en"},
}

// ParseVariant validates a raw dictionary type string. Unknown values are
// rejected before any I/O happens.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if _, ok := upstreamCodes[v]; !ok {
		return "", fmt.Errorf("unsupported dictionary type %q (supported: %s, %s)",
			s, VariantKoreanChinese, VariantKoreanEnglish)
	}
	return v, nil
}

// UpstreamCodes returns the upstream dictionary code and language parameter.
func (v Variant) UpstreamCodes() (dictCode string, lang string) {
	codes := upstreamCodes[v]
	return codes.dictCode, codes.lang
}

func (v Variant) String() string {
	return string(v)
}
