// Package caption expands owner-scoped caption templates.
//
// A template may contain three placeholder kinds: counters ("[01]", "[(01)]"),
// a single quality cycle ("[re (480p, 720p)]"), and conditional text
// ("[End (02)]"). Counter and cycle state live per owner and advance on every
// expansion; setting a new template is the only reset trigger.
package caption
