package db

import (
	"fmt"
	"sort"
	"strings"
)

// MatchAll is the FT.SEARCH query matching every document in an index.
const MatchAll = "*"

// TagQuery renders an exact TAG match, e.g. @source:{https\://files/a\.pdf}.
func TagQuery(field, value string) string {
	return fmt.Sprintf("@%s:{%s}", field, tagEscaper.Replace(value))
}

// TagsQuery joins exact TAG matches with AND, in field order. An empty map yields "".
func TagsQuery(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	fields := make([]string, 0, len(tags))
	for f := range tags {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = TagQuery(f, tags[f])
	}
	return strings.Join(parts, " ")
}

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", "\\,",
	".", "\\.",
	"/", "\\/",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"?", "\\?",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)
