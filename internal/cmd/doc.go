// Package cmd implements the imageoptimizer command-line interface.
//
// Each subcommand lives in its own file with a constructor returning a
// *cobra.Command:
//   - recode: convert files or directories to WebP, optionally as one ZIP
//   - watch: recode images dropped into a directory
//   - version: print build information
//
// Configuration is layered: defaults, an optional YAML file (--config),
// .env and IMAGEOPT_* variables, then command-line flags.
package cmd
