// Package cmd implements the command-line interface for zele.
//
// This package provides the following commands:
//   - threads: List threads, served from the local cache where possible
//   - watch: Watch an account's change feed for new mail
//   - auth: Authorize an account and store its credential
//   - accounts: List configured accounts and their credential status
//   - version: Display version information
package cmd
