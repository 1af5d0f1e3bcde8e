package core

// Logger is any service that can log messages.
// args may hold errors, extra data (map[string]interface{}) and at most one Person.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the authenticated caller a log entry relates to.
type Person struct {
	ID       string
	Username string
	Email    string
}
