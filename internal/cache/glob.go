package cache

// globMatch reports whether key matches pattern using Redis glob rules, so
// the memory store selects the same keys a Redis SCAN MATCH would. Unlike
// path.Match, '*' also spans '/' and a malformed class never errors.
//
//	*      any run of characters, including none
//	?      exactly one character
//	[abc]  one character from the set; [^abc] negates; [a-z] is a range
//	\x     the literal x
func globMatch(pattern, key string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if globMatch(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(key) == 0 {
				return false
			}
			key = key[1:]
			pattern = pattern[1:]
		case '[':
			if len(key) == 0 {
				return false
			}
			rest, ok := matchClass(pattern[1:], key[0])
			if !ok {
				return false
			}
			pattern = rest
			key = key[1:]
		case '\\':
			if len(pattern) >= 2 {
				pattern = pattern[1:]
			}
			fallthrough
		default:
			if len(key) == 0 || pattern[0] != key[0] {
				return false
			}
			pattern = pattern[1:]
			key = key[1:]
		}
	}
	return len(key) == 0
}

// matchClass consumes a bracket expression (without its opening '[') and
// reports whether c is in it. An unterminated class runs to the end of the
// pattern, as in Redis.
func matchClass(pattern string, c byte) (string, bool) {
	negate := false
	if len(pattern) > 0 && pattern[0] == '^' {
		negate = true
		pattern = pattern[1:]
	}
	match := false
	for len(pattern) > 0 && pattern[0] != ']' {
		switch {
		case pattern[0] == '\\' && len(pattern) >= 2:
			if pattern[1] == c {
				match = true
			}
			pattern = pattern[2:]
		case len(pattern) >= 3 && pattern[1] == '-' && pattern[2] != ']':
			lo, hi := pattern[0], pattern[2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				match = true
			}
			pattern = pattern[3:]
		default:
			if pattern[0] == c {
				match = true
			}
			pattern = pattern[1:]
		}
	}
	if len(pattern) > 0 {
		pattern = pattern[1:]
	}
	return pattern, match != negate
}
