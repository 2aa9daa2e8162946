// Package migrations embeds the schema migrations for every SQL engine.
// Each engine has its own directory of golang-migrate up/down pairs.
package migrations

import "embed"

// FS holds <engine>/<version>_<name>.<up|down>.sql files.
//
//go:embed postgres/*.sql sqlserver/*.sql mysql/*.sql sqlite/*.sql
var FS embed.FS
