package comparer

import (
	"strconv"
	"strings"

	"github.com/Fenrix23/watchlist_compare/logger"
)

// FriendBadge renders a compact glyph badge for how many friends share a
// movie. Small counts show individual figures, larger ones collapse into
// a bucket glyph with the number attached. A zero count never occurs for
// a common movie and is logged as an error.
func FriendBadge(count int) string {
	switch {
	case count <= 0:
		logger.Logtype("error", 0).
			Int("count", count).
			Msg("friend badge requested for empty share count")
		return ""
	case count <= 10:
		var bld strings.Builder
		for n := 0; n < count/2; n++ {
			bld.WriteString("👥")
		}
		if count%2 == 1 {
			bld.WriteString("👤")
		}
		return bld.String()
	case count <= 15:
		return "👥👥👥👥👥+ (" + strconv.Itoa(count) + ")"
	case count <= 25:
		return "🎭🎭🎭 (" + strconv.Itoa(count) + ")"
	case count <= 50:
		return "🏟️ (" + strconv.Itoa(count) + ")"
	}
	return "🌍 (" + strconv.Itoa(count) + ")"
}
