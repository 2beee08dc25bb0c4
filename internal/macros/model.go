package macros

// MaxNameLength bounds macro names, in characters.
const MaxNameLength = 255

// Macro is a named, ordered group of an owner's commands. Names are unique per owner.
type Macro struct {
	ID     int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID int64  `gorm:"column:user_id;not null;uniqueIndex:idx_macros_user_name,priority:1"`
	Name   string `gorm:"column:name;size:255;not null;uniqueIndex:idx_macros_user_name,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Macro) TableName() string {
	return "macros"
}

// MacroCommand places one command at a replay position inside a macro.
type MacroCommand struct {
	MacroID   int64 `gorm:"column:macro_id;primaryKey;autoIncrement:false"`
	CommandID int64 `gorm:"column:command_id;primaryKey;autoIncrement:false"`
	Order     int   `gorm:"column:order_index;not null"`
}

// TableName provides the explicit table binding for GORM.
func (MacroCommand) TableName() string {
	return "macro_commands"
}

// normalizeCommandIDs keeps the first occurrence of every identifier, since the
// (macro, command) key admits a command only once per macro.
func normalizeCommandIDs(commandIDs []int64) []int64 {
	seen := make(map[int64]struct{}, len(commandIDs))
	ordered := make([]int64, 0, len(commandIDs))
	for _, id := range commandIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	return ordered
}

func buildMemberships(macroID int64, orderedCommandIDs []int64) []MacroCommand {
	memberships := make([]MacroCommand, 0, len(orderedCommandIDs))
	for index, commandID := range orderedCommandIDs {
		memberships = append(memberships, MacroCommand{
			MacroID:   macroID,
			CommandID: commandID,
			Order:     index + 1,
		})
	}
	return memberships
}
