package store

import sq "github.com/Masterminds/squirrel"

// psql renders SQLite placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
