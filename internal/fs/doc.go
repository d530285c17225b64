// Package fs abstracts the file operations of the local blob store so tests
// can inject failures.
//
// Production code uses [Default]. Tests wrap it in a [FaultyFS]:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("CURRENT", fs.Fault{FailAfterBytes: -1, FailOnRename: true})
//
// Operations take no context. Local file operations cannot be interrupted at
// the syscall level.
package fs
