// Package model defines the data structures shared by the relocator layers.
package model

// Path represents a file system path.
type Path string

// ModuleKind tells how a source file is loaded at runtime.
type ModuleKind string

const (
	// ModuleCommonJS marks a script evaluated with the CommonJS wrapper
	// (`require`, `module`, `__dirname` in scope).
	ModuleCommonJS ModuleKind = "cjs"

	// ModuleESM marks a file with top-level import/export statements.
	ModuleESM ModuleKind = "esm"
)

// File represents a source code file.
type File struct {
	Path Path
	Hash string
}

// Source is a JavaScript input handed to the relocator.
type Source struct {
	Origin *File
	// Cwd is the working-directory context used to resolve relative
	// literal paths such as './data.json'.
	Cwd Path
	// Content holds the raw source text.
	Content []byte
}
