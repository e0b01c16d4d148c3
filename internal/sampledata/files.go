package sampledata

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/okian/petroenergy/internal/adapters/dataset"
)

// WriteFiles generates both datasets into dir and returns the market and
// equipment file paths.
func WriteFiles(ctx context.Context, dir string, cfg Config) (string, string, error) {
	prices, readings, err := Generate(ctx, cfg)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create %s: %w", dir, err)
	}

	market := filepath.Join(dir, MarketFile)
	if err := writeFile(market, func(w io.Writer) error { return dataset.WritePriceSeries(w, prices) }); err != nil {
		return "", "", err
	}
	equipment := filepath.Join(dir, EquipmentFile)
	if err := writeFile(equipment, func(w io.Writer) error { return dataset.WriteEquipmentReadings(w, readings) }); err != nil {
		return "", "", err
	}
	return market, equipment, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
