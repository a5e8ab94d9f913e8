package executor

import (
	"strings"
)

// sanitizeResponse performs minimal cleanup prior to parsing.
func sanitizeResponse(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "﻿")
	return s
}
