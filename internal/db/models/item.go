package models

// Item is a row of the ItemTable key-value table in Antigravity's
// state.vscdb. The table is owned by the IDE; we never migrate it.
type Item struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value"`
}

// TableName pins the IDE's table name.
func (Item) TableName() string {
	return "ItemTable"
}
