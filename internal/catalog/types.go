package catalog

// Column represents a single column in a database table.
type Column struct {
	Name             string  `json:"name"`
	DataType         string  `json:"dataType"`
	IsNullable       bool    `json:"isNullable"`
	Default          *string `json:"default,omitempty"`
	IsPrimary        bool    `json:"isPrimary"`
	IsUnique         bool    `json:"isUnique"`
	IsForeignKey     bool    `json:"isForeignKey"`
	ReferencesTable  string  `json:"referencesTable,omitempty"`
	ReferencesColumn string  `json:"referencesColumn,omitempty"`
}

// ForeignKey is one directed column-level edge of a foreign key constraint.
// Composite constraints are emitted as one edge per column pair.
type ForeignKey struct {
	FromTable      string `json:"fromTable"`
	FromColumn     string `json:"fromColumn"`
	ToTable        string `json:"toTable"`
	ToColumn       string `json:"toColumn"`
	ConstraintName string `json:"constraintName"`
}

// Table describes a base table. Built fresh per request and never cached,
// since the schema may change between calls.
type Table struct {
	Name        string       `json:"name"`
	RowCount    int64        `json:"rowCount"`
	Columns     []Column     `json:"columns"`
	Indexes     []string     `json:"indexes"`
	ForeignKeys []ForeignKey `json:"foreignKeys"`
}

// TableOverview is the lightweight per-table summary used by the overview
// and stats endpoints.
type TableOverview struct {
	Name        string `json:"name"`
	RowCount    int64  `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
}
