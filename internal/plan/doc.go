// Package plan defines the editing plan exchanged between highlight
// detection, plan generation, b-roll acquisition and rendering, and
// validates generated plans before they are persisted.
package plan
