package tcc

// Method names the remote call a Request is for.
type Method int

const (
	MethodGet Method = iota
	MethodMultiget
	MethodGetSlice
	MethodGetCount
	MethodInsert
	MethodBatchInsert
	MethodRemove
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "get"
	case MethodMultiget:
		return "multiget"
	case MethodGetSlice:
		return "get_slice"
	case MethodGetCount:
		return "get_count"
	case MethodInsert:
		return "insert"
	case MethodBatchInsert:
		return "batch_insert"
	case MethodRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Column is a single name/value cell with its write timestamp.
type Column struct {
	Name      string `json:"Name"`
	Value     []byte `json:"Value"`
	Timestamp int64  `json:"Timestamp"`
}

// ColumnPath addresses one column, optionally inside a super column.
type ColumnPath struct {
	ColumnFamily string `json:"ColumnFamily"`
	SuperColumn  string `json:"SuperColumn,omitempty"`
	Column       string `json:"Column"`
}

// ColumnParent addresses a column family, optionally narrowed to one super column.
type ColumnParent struct {
	ColumnFamily string `json:"ColumnFamily"`
	SuperColumn  string `json:"SuperColumn,omitempty"`
}

// SliceRange selects columns between Start and Finish.
type SliceRange struct {
	Start    string `json:"Start"`
	Finish   string `json:"Finish"`
	Reversed bool   `json:"Reversed"`
	Count    int    `json:"Count"`
}

// SlicePredicate selects columns either by name or by range.
type SlicePredicate struct {
	ColumnNames []string    `json:"ColumnNames,omitempty"`
	Range       *SliceRange `json:"Range,omitempty"`
}

// Request is the descriptor handed to RemoteConn.Invoke.
type Request struct {
	Method       Method              `json:"Method"`
	Keyspace     string              `json:"Keyspace"`
	Key          string              `json:"Key,omitempty"`
	Keys         []string            `json:"Keys,omitempty"`
	ColumnPath   *ColumnPath         `json:"ColumnPath,omitempty"`
	ColumnParent *ColumnParent       `json:"ColumnParent,omitempty"`
	Predicate    *SlicePredicate     `json:"Predicate,omitempty"`
	Value        []byte              `json:"Value,omitempty"`
	Timestamp    int64               `json:"Timestamp,omitempty"`
	Mutations    map[string][]Column `json:"Mutations,omitempty"`
	Consistency  ConsistencyLevel    `json:"Consistency"`
}

// Response carries whichever fields the Method fills in.
type Response struct {
	Column       *Column           `json:"Column,omitempty"`
	Columns      []Column          `json:"Columns,omitempty"`
	ColumnsByKey map[string]Column `json:"ColumnsByKey,omitempty"`
	Count        int               `json:"Count"`
}
