// Package probe answers media questions without ever failing the caller.
//
// The primary tool is ffprobe. When it errors out, or succeeds while
// reporting zero dimensions, a lightweight built-in container parser (MP4
// boxes and Matroska EBML) supplies duration and dimensions instead. When
// both fail the result carries zeroed fields.
package probe
