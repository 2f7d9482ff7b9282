package markup

// Kind is the formatting applied by an annotation.
type Kind int

const (
	// KindUnknown renders nothing; the span is left as plain text.
	KindUnknown Kind = iota
	// KindBold wraps the span in <b>.
	KindBold
	// KindItalic wraps the span in <i>.
	KindItalic
	// KindUnderline wraps the span in <u>.
	KindUnderline
	// KindCode wraps the span in <code>.
	KindCode
	// KindStrikethrough wraps the span in <s>.
	KindStrikethrough
	// KindLink wraps the span in an anchor whose href is the annotation Arg.
	KindLink
)

var kindNames = map[string]Kind{
	"bold":          KindBold,
	"italic":        KindItalic,
	"underline":     KindUnderline,
	"code":          KindCode,
	"strikethrough": KindStrikethrough,
	"text_link":     KindLink,
	"link":          KindLink,
}

// ParseKind maps a Telegram entity type to a Kind. Matching is exact, as the
// Bot API always sends lower case names; "link" is accepted as an alias of
// "text_link". Anything else, including types without an HTML rendering such
// as mention or pre, maps to KindUnknown.
func ParseKind(raw string) Kind {
	if kind, ok := kindNames[raw]; ok {
		return kind
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindBold:
		return "bold"
	case KindItalic:
		return "italic"
	case KindUnderline:
		return "underline"
	case KindCode:
		return "code"
	case KindStrikethrough:
		return "strikethrough"
	case KindLink:
		return "text_link"
	default:
		return "unknown"
	}
}

// DelimiterPair is the markup wrapped around an annotated span.
type DelimiterPair struct {
	Open  string
	Close string
}

// Delimiters returns the tags for kind. Unknown kinds yield an empty pair.
func Delimiters(kind Kind, arg string) DelimiterPair {
	switch kind {
	case KindBold:
		return DelimiterPair{Open: "<b>", Close: "</b>"}
	case KindItalic:
		return DelimiterPair{Open: "<i>", Close: "</i>"}
	case KindUnderline:
		return DelimiterPair{Open: "<u>", Close: "</u>"}
	case KindCode:
		return DelimiterPair{Open: "<code>", Close: "</code>"}
	case KindStrikethrough:
		return DelimiterPair{Open: "<s>", Close: "</s>"}
	case KindLink:
		return DelimiterPair{Open: `<a href="` + arg + `">`, Close: "</a>"}
	default:
		return DelimiterPair{}
	}
}
