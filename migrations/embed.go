// Package migrations embarque les migrations SQL appliquées au démarrage.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
