package extractor

import "strings"

// ParseSrcset returns the candidate URLs of a srcset attribute, following
// the HTML candidate grammar: URLs end at whitespace, descriptors end at
// a comma outside parentheses.
func ParseSrcset(srcset string) []string {
	var urls []string
	s := srcset
	for {
		s = strings.TrimLeft(s, " \t\n\r\f,")
		if s == "" {
			return urls
		}

		end := strings.IndexAny(s, " \t\n\r\f")
		if end < 0 {
			end = len(s)
		}
		u := s[:end]
		s = s[end:]

		if trimmed := strings.TrimRight(u, ","); trimmed != u {
			// "a.png, b.png": a URL ending in commas has no descriptor.
			if trimmed != "" {
				urls = append(urls, trimmed)
			}
			continue
		}
		if u != "" {
			urls = append(urls, u)
		}

		// Skip the descriptor up to the next top-level comma.
		depth := 0
		i := 0
	descriptor:
		for ; i < len(s); i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				if depth > 0 {
					depth--
				}
			case ',':
				if depth == 0 {
					break descriptor
				}
			}
		}
		s = s[i:]
	}
}
