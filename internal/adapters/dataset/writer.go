package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/okian/petroenergy/internal/domain/model"
)

const dateLayout = "2006-01-02"

// WritePriceSeries writes records as a price CSV. NaN prices are left empty.
func WritePriceSeries(w io.Writer, records []model.PriceRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColDate, ColWTI, ColBrent}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{r.Date.Format(dateLayout), formatFloat(r.WTI), formatFloat(r.Brent)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquipmentReadings writes readings as an equipment CSV.
func WriteEquipmentReadings(w io.Writer, readings []model.EquipmentReading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColFacility, ColEquipment, ColTimestamp, ColHealthScore}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range readings {
		row := []string{r.FacilityID, r.EquipmentID, r.Timestamp.Format(time.RFC3339), formatFloat(r.HealthScore)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
