package tools

import (
	"context"
	"fmt"

	"order-analyst/table"

	"go.uber.org/zap"
)

const DataLoaderName = "data_loader"

// DataLoader replaces the current table with the order data of a date range.
type DataLoader struct {
	dir    string
	store  *table.Store
	logger *zap.Logger
}

func NewDataLoader(dir string, store *table.Store, logger *zap.Logger) *DataLoader {
	return &DataLoader{dir: dir, store: store, logger: logger}
}

func (d *DataLoader) Descriptor() Descriptor {
	return Descriptor{
		Name: DataLoaderName,
		Description: "Loads order data from the daily CSV files between two dates (inclusive). " +
			"The input must be a single string with the start and end dates formatted exactly as " +
			"YYYY-MM-DD, YYYY-MM-DD (no quotes). Examples: 2024-12-01, 2024-12-31 or 2025-05-01, 2025-05-20. " +
			"The loaded data replaces any previously loaded data.",
		InputContract: "YYYY-MM-DD, YYYY-MM-DD",
		ProgressLabel: "Loading data",
	}
}

func (d *DataLoader) Run(ctx context.Context, input string) string {
	start, end, err := table.ParseRange(input)
	if err != nil {
		return fmt.Sprintf("Failed to load data: %v", err)
	}
	t, err := table.LoadRange(d.dir, start, end)
	if err != nil {
		d.logger.Warn("Data load failed", zap.String("input", input), zap.Error(err))
		return fmt.Sprintf("Failed to load data: %v", err)
	}
	d.store.Set(t)
	d.logger.Info("Data loaded", zap.String("range", input), zap.Int("rows", t.Len()), zap.Int("columns", len(t.Columns)))
	return "Data loaded successfully"
}
