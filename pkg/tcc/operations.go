package tcc

import (
	"context"
	"errors"
	"fmt"
	"time"
)

func (k *Keyspace) newRequest(method Method) *Request {
	return &Request{
		Method:      method,
		Keyspace:    k.name,
		Consistency: k.consistency,
	}
}

func validateColumnPath(path ColumnPath) error {
	if path.ColumnFamily == "" || path.Column == "" {
		return fmt.Errorf("%w: column path needs a column family and a column", ErrInvalidRequest)
	}
	return nil
}

// timestamp is the write timestamp in microseconds.
func timestamp() int64 {
	return time.Now().UnixMicro()
}

type columnLookup struct {
	column Column
	found  bool
}

// GetColumn reads one column. A missing column is reported through found, not as an error.
func (k *Keyspace) GetColumn(ctx context.Context, key string, path ColumnPath) (Column, bool, error) {
	if err := validateColumnPath(path); err != nil {
		return Column{}, false, k.reject(OperationRead, err)
	}

	lookup, err := Execute(ctx, k, OperationRead, func(ctx context.Context, conn RemoteConn) (columnLookup, error) {
		request := k.newRequest(MethodGet)
		request.Key = key
		request.ColumnPath = &path

		response, err := conn.Invoke(ctx, request)
		if errors.Is(err, ErrNotFound) {
			return columnLookup{}, nil
		}
		if err != nil {
			return columnLookup{}, err
		}
		if response == nil || response.Column == nil {
			return columnLookup{}, nil
		}

		return columnLookup{column: *response.Column, found: true}, nil
	})

	return lookup.column, lookup.found, err
}

// MultigetColumn reads one column for many keys. Keys without the column are absent from the result.
func (k *Keyspace) MultigetColumn(ctx context.Context, keys []string, path ColumnPath) (map[string]Column, error) {
	if err := validateColumnPath(path); err != nil {
		return nil, k.reject(OperationRead, err)
	}

	return Execute(ctx, k, OperationRead, func(ctx context.Context, conn RemoteConn) (map[string]Column, error) {
		request := k.newRequest(MethodMultiget)
		request.Keys = keys
		request.ColumnPath = &path

		response, err := conn.Invoke(ctx, request)
		if err != nil {
			return nil, err
		}

		result := make(map[string]Column)
		if response != nil {
			for key, column := range response.ColumnsByKey {
				result[key] = column
			}
		}

		return result, nil
	})
}

// GetSlice reads the columns of a row selected by predicate.
func (k *Keyspace) GetSlice(ctx context.Context, key string, parent ColumnParent, predicate SlicePredicate) ([]Column, error) {
	return Execute(ctx, k, OperationRead, func(ctx context.Context, conn RemoteConn) ([]Column, error) {
		request := k.newRequest(MethodGetSlice)
		request.Key = key
		request.ColumnParent = &parent
		request.Predicate = &predicate

		response, err := conn.Invoke(ctx, request)
		if err != nil {
			return nil, err
		}
		if response == nil {
			return []Column{}, nil
		}

		return response.Columns, nil
	})
}

// GetCount counts the columns of a row.
func (k *Keyspace) GetCount(ctx context.Context, key string, parent ColumnParent) (int, error) {
	return Execute(ctx, k, OperationRead, func(ctx context.Context, conn RemoteConn) (int, error) {
		request := k.newRequest(MethodGetCount)
		request.Key = key
		request.ColumnParent = &parent

		response, err := conn.Invoke(ctx, request)
		if err != nil {
			return 0, err
		}
		if response == nil {
			return 0, nil
		}

		return response.Count, nil
	})
}

// Insert writes one column.
func (k *Keyspace) Insert(ctx context.Context, key string, path ColumnPath, value []byte) error {
	if err := validateColumnPath(path); err != nil {
		return k.reject(OperationWrite, err)
	}

	ts := timestamp()
	_, err := Execute(ctx, k, OperationWrite, func(ctx context.Context, conn RemoteConn) (struct{}, error) {
		request := k.newRequest(MethodInsert)
		request.Key = key
		request.ColumnPath = &path
		request.Value = value
		request.Timestamp = ts

		_, err := conn.Invoke(ctx, request)
		return struct{}{}, err
	})

	return err
}

// BatchInsert writes columns across column families of one row. Columns without a timestamp
// get the batch's timestamp.
func (k *Keyspace) BatchInsert(ctx context.Context, key string, columns map[string][]Column) error {
	if len(columns) == 0 {
		return k.reject(OperationWrite, fmt.Errorf("%w: batch insert needs at least one column family", ErrInvalidRequest))
	}

	ts := timestamp()
	mutations := make(map[string][]Column, len(columns))
	for family, familyColumns := range columns {
		stamped := make([]Column, len(familyColumns))
		for i, column := range familyColumns {
			if column.Timestamp == 0 {
				column.Timestamp = ts
			}
			stamped[i] = column
		}
		mutations[family] = stamped
	}

	_, err := Execute(ctx, k, OperationWrite, func(ctx context.Context, conn RemoteConn) (struct{}, error) {
		request := k.newRequest(MethodBatchInsert)
		request.Key = key
		request.Mutations = mutations
		request.Timestamp = ts

		_, err := conn.Invoke(ctx, request)
		return struct{}{}, err
	})

	return err
}

// Remove deletes a column, or the whole row when path names only a column family.
func (k *Keyspace) Remove(ctx context.Context, key string, path ColumnPath) error {
	if path.ColumnFamily == "" {
		return k.reject(OperationWrite, fmt.Errorf("%w: remove needs a column family", ErrInvalidRequest))
	}

	ts := timestamp()
	_, err := Execute(ctx, k, OperationWrite, func(ctx context.Context, conn RemoteConn) (struct{}, error) {
		request := k.newRequest(MethodRemove)
		request.Key = key
		request.ColumnPath = &path
		request.Timestamp = ts

		_, err := conn.Invoke(ctx, request)
		return struct{}{}, err
	})

	return err
}
