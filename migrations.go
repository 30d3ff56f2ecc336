// Package qrscanner holds assets shared by the binaries, such as the embedded
// SQL migrations applied by the migrate command.
package qrscanner

import "embed"

// Migrations contains the goose migrations under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
