package commands

// MaxTextLength bounds the stored command text, in characters.
const MaxTextLength = 511

// Command is a saved shell command. Rows are append-only.
type Command struct {
	ID     int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID int64  `gorm:"column:user_id;not null;index:idx_commands_user"`
	Text   string `gorm:"column:command;size:511;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Command) TableName() string {
	return "commands"
}

// SearchOptions holds the optional filters of a command search.
// An empty Keyword matches everything and a Limit of zero or less is unbounded.
type SearchOptions struct {
	Keyword    string
	Limit      int
	IncludeIDs bool
}

// Entry is one search result. ID is zero unless SearchOptions.IncludeIDs was set.
type Entry struct {
	ID   int64
	Text string
}

// Texts returns the command texts of entries, preserving order.
func Texts(entries []Entry) []string {
	texts := make([]string, 0, len(entries))
	for _, entry := range entries {
		texts = append(texts, entry.Text)
	}
	return texts
}
