// Package reply is the transport-neutral shape of what the bot sends back:
// messages with embeds and buttons, and modal prompts.
package reply

// Kind selects the colour of an embed.
type Kind int

const (
	Normal Kind = iota
	Success
	Warning
	Error
)

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Kind        Kind
	Title       string
	Description string
	Fields      []Field
	Footer      string
}

// ButtonStyle mirrors the platform's button styles.
type ButtonStyle int

const (
	Primary ButtonStyle = iota + 1
	Secondary
	Successful
	Danger
)

type Button struct {
	ID       string
	Label    string
	Emoji    string
	Style    ButtonStyle
	Disabled bool
}

// Message is one reply. Buttons are rendered as a single row.
type Message struct {
	Content   string
	Embeds    []Embed
	Buttons   []Button
	Ephemeral bool
}

type TextInput struct {
	ID          string
	Label       string
	Placeholder string
	Required    bool
	MinLength   int
	MaxLength   int
}

// Modal is a form shown in response to a component interaction.
type Modal struct {
	ID     string
	Title  string
	Inputs []TextInput
}

// Text returns a plain message.
func Text(content string) Message {
	return Message{Content: content}
}

// Notice returns a message with a single embed.
func Notice(kind Kind, title, description string) Message {
	return Message{Embeds: []Embed{{Kind: kind, Title: title, Description: description}}}
}

// Private marks m ephemeral.
func (m Message) Private() Message {
	m.Ephemeral = true
	return m
}

// WithButtons returns m with its button row replaced.
func (m Message) WithButtons(b []Button) Message {
	m.Buttons = b
	return m
}
