// Package command runs the external collaborators (auto editor,
// transcriber, highlight detector, plan generator, b-roll fetcher,
// renderer, publisher) from argv templates in the [commands] config
// section.
//
// Structured inputs travel as JSON on stdin and structured results come
// back as JSON on stdout. Exit status 75 marks a temporary upstream
// failure and is retried; other non-zero exits take the stage's default
// failure kind.
package command
