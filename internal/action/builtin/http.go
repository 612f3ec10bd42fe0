// Package builtin contains the actions shipped with Kiki. Each file registers its action
// with the action catalog in init().
package builtin

const (
	userAgent        = "Kiki/1.0 (+https://github.com/harunnryd/kiki)"
	maxResponseBytes = 2 << 20
)
