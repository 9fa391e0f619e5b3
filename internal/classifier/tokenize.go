package classifier

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// genericTokens carry no entity meaning on their own. A column named only
// with these ("code", "id") borrows the table name's tokens.
var genericTokens = map[string]bool{
	"cd": true, "code": true, "id": true, "key": true, "name": true,
	"no": true, "num": true, "number": true, "type": true, "value": true,
}

// Tokenize splits an identifier on case, underscore, space, hyphen and
// letter/digit boundaries, and lowercases the parts.
func Tokenize(name string) []string {
	var (
		tokens []string
		cur    []rune
	)
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			switch {
			case unicode.IsDigit(r) != unicode.IsDigit(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsLower(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsUpper(prev) &&
				i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				// "HTTPServer" -> "http", "server"
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}

// columnTokens tokenizes a column name, prefixing the table's tokens when the
// column name is generic only.
func columnTokens(table, column string) []string {
	tokens := Tokenize(column)
	for _, t := range tokens {
		if !genericTokens[t] {
			return tokens
		}
	}
	return append(Tokenize(table), tokens...)
}

func stem(word string) string {
	return english.Stem(word, false)
}
