// Package all links every sink backend into a binary via blank imports.
package all

import (
	_ "lifelog/internal/sink/httpsink"
	_ "lifelog/internal/sink/mssql"
	_ "lifelog/internal/sink/postgres"
	_ "lifelog/internal/sink/sqlite"
)
