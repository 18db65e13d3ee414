// Package thread reconstructs a reply-tree view from a flat, causally
// linked message list. Reconstruction is a pure function; replies whose
// root cannot be resolved degrade to an orphan list and are never dropped.
package thread
