// Package all registers every built-in storage backend. Import it for side
// effects from the wiring layer:
//
//	import _ "combostat/internal/storage/all"
package all

import (
	_ "combostat/internal/storage/postgres"
	_ "combostat/internal/storage/sqlite"
)
