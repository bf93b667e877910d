package port

// Sink receives formatted report lines.
type Sink interface {
	WriteLine(line string) error
}
