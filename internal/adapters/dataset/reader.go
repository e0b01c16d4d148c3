// Package dataset reads and writes the CSV inputs of the models: the daily
// commodity price series and the equipment health log.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/petroenergy/internal/domain/model"
	"github.com/okian/petroenergy/pkg/logger"
)

// Column names, matched case-insensitively.
const (
	ColDate        = "DATE"
	ColWTI         = "WTIPRICE"
	ColBrent       = "BRENTPRICE"
	ColFacility    = "FACILITYID"
	ColEquipment   = "EQUIPMENTID"
	ColTimestamp   = "TIMESTAMP"
	ColHealthScore = "HEALTHSCORE"
)

// Option applies a configuration option to the Reader.
type Option func(*Reader)

// WithLogger sets the logger that receives warnings about skipped rows.
func WithLogger(l logger.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

// Reader parses dataset files. Malformed rows are logged and skipped.
type Reader struct {
	log logger.Logger
}

// NewReader creates a Reader.
func NewReader(opts ...Option) *Reader {
	r := &Reader{}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("dataset")
	}
	return r
}

// LoadPriceSeries reads the price CSV at path.
func (r *Reader) LoadPriceSeries(ctx context.Context, path string) ([]model.PriceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	out, err := r.PriceSeries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// PriceSeries parses a price CSV. Empty or unparsable prices become NaN; rows
// with an unreadable date are skipped.
func (r *Reader) PriceSeries(ctx context.Context, in io.Reader) ([]model.PriceRecord, error) {
	var out []model.PriceRecord
	err := r.scan(ctx, in, []string{ColDate, ColWTI, ColBrent}, func(line int, get func(string) string) error {
		date, err := parseTimestamp(get(ColDate))
		if err != nil {
			return err
		}
		out = append(out, model.PriceRecord{
			Date:  date,
			WTI:   r.number(ctx, line, ColWTI, get(ColWTI)),
			Brent: r.number(ctx, line, ColBrent, get(ColBrent)),
		})
		return nil
	})
	return out, err
}

// LoadEquipmentReadings reads the equipment CSV at path.
func (r *Reader) LoadEquipmentReadings(ctx context.Context, path string) ([]model.EquipmentReading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	out, err := r.EquipmentReadings(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// EquipmentReadings parses an equipment CSV. A missing health score becomes
// NaN; rows without identifiers or a readable timestamp are skipped.
func (r *Reader) EquipmentReadings(ctx context.Context, in io.Reader) ([]model.EquipmentReading, error) {
	var out []model.EquipmentReading
	cols := []string{ColFacility, ColEquipment, ColTimestamp, ColHealthScore}
	err := r.scan(ctx, in, cols, func(line int, get func(string) string) error {
		rd := model.EquipmentReading{
			FacilityID:  get(ColFacility),
			EquipmentID: get(ColEquipment),
		}
		if rd.FacilityID == "" || rd.EquipmentID == "" {
			return errors.New("missing facility or equipment id")
		}
		ts, err := parseTimestamp(get(ColTimestamp))
		if err != nil {
			return err
		}
		rd.Timestamp = ts
		rd.HealthScore = r.number(ctx, line, ColHealthScore, get(ColHealthScore))
		out = append(out, rd)
		return nil
	})
	return out, err
}

// scan maps the header, checks the required columns and hands every data row
// to row. Errors returned by row skip that row.
func (r *Reader) scan(ctx context.Context, in io.Reader, required []string, row func(line int, get func(string) string) error) error {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return ErrEmptyFile
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		indices[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := indices[col]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		get := func(key string) string {
			if idx, ok := indices[key]; ok && idx < len(record) {
				return strings.TrimSpace(record[idx])
			}
			return ""
		}
		if err := row(line, get); err != nil {
			r.log.Warn(ctx, "skipping row", logger.Int("line", line), logger.Error(err))
		}
	}
}

func (r *Reader) number(ctx context.Context, line int, col, s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		r.log.Warn(ctx, "treating value as missing",
			logger.Int("line", line), logger.String("column", col), logger.String("value", s))
		return math.NaN()
	}
	return v
}

// CleanPriceSeries drops rows missing either price, orders rows by date and
// keeps the last row seen for each date, so dates are strictly increasing.
func CleanPriceSeries(records []model.PriceRecord) []model.PriceRecord {
	out := make([]model.PriceRecord, 0, len(records))
	for _, rec := range records {
		if math.IsNaN(rec.WTI) || math.IsNaN(rec.Brent) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	kept := out[:0]
	for i, rec := range out {
		if i+1 < len(out) && out[i+1].Date.Equal(rec.Date) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// parseTimestamp tries the layouts seen in exported spreadsheets.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02 15:04:05",
		"01/02/2006 15:04:05",
		"2006-01-02",
		"01/02/2006",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", s)
}
