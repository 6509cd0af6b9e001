package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BulkLoader inserts many rows through the COPY protocol. It must run inside
// a transaction so a failed load leaves nothing behind.
type BulkLoader struct {
	txManager *TxManager
}

// NewBulkLoader creates a bulk loader.
func NewBulkLoader(txManager *TxManager) *BulkLoader {
	return &BulkLoader{txManager: txManager}
}

// Copy loads rows into table. Every row must match columns in order.
func (b *BulkLoader) Copy(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("copy into %s requires a transaction", table)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// CopyStructs loads records into table using their db tags as columns.
func CopyStructs[T any](ctx context.Context, b *BulkLoader, table string, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	columns := ExtractDBColumns[T]()
	rows := make([][]any, 0, len(records))
	for i := range records {
		m := StructToMap(&records[i])
		row := make([]any, len(columns))
		for j, c := range columns {
			row[j] = m[c]
		}
		rows = append(rows, row)
	}
	return b.Copy(ctx, table, columns, rows)
}
