package shared

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	reQuotedDotted = regexp.MustCompile(`".+\..+"`)   // "random.table"
	reQuotedPair   = regexp.MustCompile(`".+"\.".+"`) // "schema"."table"
	reQuoted       = regexp.MustCompile(`".+"`)
)

// SchemaTable is a [<schema>.]<object> name as written by users.
type SchemaTable struct {
	SchemaTable string `errorTxt:"[<schema>.]<object>" mandatory:"yes"`
}

func NewSchemaTable(schema string, table string) SchemaTable {
	if schema == "" {
		return SchemaTable{table}
	}
	return SchemaTable{schema + "." + table}
}

func (st *SchemaTable) isQuotedTable() bool {
	// if the schemaTable is a quoted "random.table" and not a regular "schema"."table"...
	return reQuotedDotted.MatchString(st.SchemaTable) && !reQuotedPair.MatchString(st.SchemaTable)
}

func (st *SchemaTable) GetTable() string {
	if st.isQuotedTable() {
		return st.SchemaTable // return the "random.table"
	}
	_, table := split(st.SchemaTable)
	return table
}

func (st *SchemaTable) GetSchema() string {
	if st.isQuotedTable() {
		return ""
	}
	schema, _ := split(st.SchemaTable)
	return schema
}

// AppendSuffix returns the name with suffix added to the table, keeping any closing quote last.
func (st *SchemaTable) AppendSuffix(suffix string) string {
	schema := st.GetSchema()
	table := st.GetTable()
	sep := "."
	if schema == "" {
		sep = ""
	}
	appendQuote := ""
	if reQuoted.MatchString(table) { // if the table is quoted...
		appendQuote = `"`
		table = strings.TrimRight(table, `"`)
	}
	return fmt.Sprintf("%v%v%v%v%v", schema, sep, table, suffix, appendQuote)
}

func (st *SchemaTable) String() string {
	return st.SchemaTable
}

func split(s string) (schema string, table string) {
	i := strings.Index(s, ".")
	if i < 0 { // if we have just a table...
		return "", s
	}
	return s[:i], s[i+1:]
}
