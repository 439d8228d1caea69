package main

// Exit codes shared by all pv commands.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Manifest error (missing file, invalid paths)
	ExitDataError   = 3 // Data error (malformed batch input, corrupt snapshot)
	ExitSchemaError = 4 // Snapshot schema version mismatch (run pv migrate)
)
