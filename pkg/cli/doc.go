// Package cli holds the command-line plumbing of the guide client.
//
// Configuration lives in ~/.giztoy/guide/config.yaml and is organized in
// named contexts, similar to kubectl:
//
//	cfg, err := cli.LoadConfig("guide")
//	ctx, err := cfg.ResolveContext("")
//	model := ctx.Model()
//
// Command results are printed through Output, which understands YAML,
// JSON and an optional jq filter. Request files for one-shot commands are
// read with LoadRequest.
package cli
