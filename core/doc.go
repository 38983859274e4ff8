// Package core holds the conversation types shared by the memory, llm,
// history and pipeline packages.
package core
