// Package standardize normalizes relayed media onto the branded container
// convention: MP4 sources stay MP4 unless they carry Opus audio, everything
// else lands in MKV. A fast stream-copy remux is attempted first; when it
// fails the video is re-encoded with a fixed quality preset. Failure of both
// phases is reported, never raised, so callers can fall back to delivering
// the unmodified original.
package standardize
