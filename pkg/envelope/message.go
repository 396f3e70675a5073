package envelope

type Origin string

const (
	OriginUser Origin = "user"
	OriginBot  Origin = "bot"
)

// ChatMessage is one entry of a view's visible list. It is never persisted.
type ChatMessage struct {
	Text   string `json:"text"`
	Origin Origin `json:"origin"`
}

func OriginFromBot(isBot bool) Origin {
	if isBot {
		return OriginBot
	}
	return OriginUser
}

// Message converts a received envelope into the message the view appends.
func (in Inbound) Message() ChatMessage {
	return ChatMessage{Text: in.Text, Origin: OriginFromBot(in.IsBot)}
}
