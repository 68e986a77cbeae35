package mail

type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
	IsHTML  bool
}

// Sender is the outbound notification channel. A non-nil error means the
// message was not delivered and the initiating request must fail; the core
// never treats a send as fire-and-forget.
type Sender interface {
	Send(message *Message) error
}
