package domain

// TextFormat tells a chat transport how to render outgoing text
type TextFormat int

const (
	FormatPlain TextFormat = iota
	FormatMarkdown
)

// OutgoingMessage is a message addressed to one chat destination (value object)
type OutgoingMessage struct {
	Text   string
	Format TextFormat
}

// DeliveryReport records the outcome of sending one message to every destination
type DeliveryReport struct {
	Attempted int
	Failed    map[string]error // destination -> error
}

// Succeeded returns the number of destinations that accepted the message
func (r *DeliveryReport) Succeeded() int {
	return r.Attempted - len(r.Failed)
}
