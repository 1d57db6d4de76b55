// Package text provides utilities for text measurement and analysis.
// This package includes reusable functions for character and word counting
// that are shared by the quality gate, the SEO helpers, and the renderer.
package text

import "strings"

// CountRunes counts the number of Unicode characters (runes) in the given text.
// This function correctly handles multi-byte characters including Japanese, Chinese,
// emoji, and other Unicode characters by counting runes instead of bytes.
//
// Length limits on titles and SEO fields are defined in characters, not bytes,
// so every length check in the pipeline goes through this function.
//
// Examples:
//
//	CountRunes("hello")          // returns 5 (ASCII text)
//	CountRunes("こんにちは")       // returns 5 (Japanese text)
//	CountRunes("hello世界")       // returns 7 (mixed text)
//	CountRunes("Hello👋")         // returns 6 (text with emoji)
//	CountRunes("")               // returns 0 (empty string)
func CountRunes(text string) int {
	return len([]rune(text))
}

// CountWords counts whitespace-separated tokens in the given text.
// Consecutive whitespace (spaces, tabs, newlines) delimits a single boundary,
// so blank lines and indentation do not inflate the count.
//
// The quality gate uses word counts to score item length, and the processor
// records them on generated articles.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
