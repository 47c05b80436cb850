// Package batch provides the two scheduling primitives of the sync core:
// a retry scheduler that backs off on rate-limit rejections, and a bounded
// executor that hydrates items concurrently with fail-fast abort semantics.
package batch
