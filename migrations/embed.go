// Package migrations embeds the consent_requests and consent_audit schema so
// tests and provisioning tooling can apply it without a source checkout.
package migrations

import "embed"

// FS holds the numbered SQL migration files in apply order.
//
//go:embed *.sql
var FS embed.FS
