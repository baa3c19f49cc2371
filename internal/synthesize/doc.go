// Package synthesize renders the final styled document from transcript and
// keyframes through a language-model collaborator.
package synthesize
