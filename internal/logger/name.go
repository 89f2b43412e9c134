package logger

// ToolName prefixes every log file written by this tool.
const ToolName = "labrunner"

// LogPrefixes returns the log file name prefixes cleanup looks for.
func LogPrefixes() []string { return []string{ToolName} }

// PrimaryLogPrefix returns the filename prefix for new log files.
func PrimaryLogPrefix() string { return ToolName }
