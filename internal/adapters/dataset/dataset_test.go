package dataset

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/petroenergy/internal/domain/model"
	"github.com/okian/petroenergy/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestReader_PriceSeries(t *testing.T) {
	Convey("Given a price reader", t, func() {
		ctx := context.Background()
		r := NewReader(WithLogger(logger.Nop()))

		Convey("When the header uses mixed case and extra columns", func() {
			in := "date,WtiPrice,brentprice,source\n" +
				"2024-01-02,71.5,75.25,eia\n" +
				"2024-01-01,,74,eia\n" +
				"not-a-date,70,74,eia\n" +
				"2024-01-03,abc,76,eia\n"
			got, err := r.PriceSeries(ctx, strings.NewReader(in))

			Convey("Then rows parse with missing prices as NaN and bad dates skipped", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 3)
				So(got[0].Date, ShouldEqual, day("2024-01-02"))
				So(got[0].WTI, ShouldEqual, 71.5)
				So(got[0].Brent, ShouldEqual, 75.25)
				So(math.IsNaN(got[1].WTI), ShouldBeTrue)
				So(math.IsNaN(got[2].WTI), ShouldBeTrue)
			})
		})

		Convey("When a required column is missing", func() {
			_, err := r.PriceSeries(ctx, strings.NewReader("DATE,WTIPRICE\n2024-01-01,70\n"))

			Convey("Then it fails with the column name", func() {
				So(errors.Is(err, ErrMissingColumn), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, ColBrent)
			})
		})

		Convey("When the input is empty", func() {
			_, err := r.PriceSeries(ctx, strings.NewReader(""))

			Convey("Then it reports the missing header", func() {
				So(errors.Is(err, ErrEmptyFile), ShouldBeTrue)
			})
		})

		Convey("When the header starts with a byte order mark", func() {
			got, err := r.PriceSeries(ctx, strings.NewReader("\ufeffDATE,WTIPRICE,BRENTPRICE\n2024-01-01,70,74\n"))

			Convey("Then the first column is still found", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
			})
		})
	})
}

func TestReader_EquipmentReadings(t *testing.T) {
	Convey("Given an equipment reader", t, func() {
		ctx := context.Background()
		r := NewReader(WithLogger(logger.Nop()))

		Convey("When parsing a log with gaps", func() {
			in := "FACILITYID,EQUIPMENTID,TIMESTAMP,HEALTHSCORE\n" +
				"F1,PUMP-1,2024-03-01T08:00:00Z,91.5\n" +
				"F1,PUMP-2,2024-03-01 09:00:00,\n" +
				",PUMP-3,2024-03-01T10:00:00Z,80\n" +
				"F2,VALVE-1,yesterday,70\n"
			got, err := r.EquipmentReadings(ctx, strings.NewReader(in))

			Convey("Then valid rows are kept and the missing score is NaN", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].FacilityID, ShouldEqual, "F1")
				So(got[0].EquipmentID, ShouldEqual, "PUMP-1")
				So(got[0].HealthScore, ShouldEqual, 91.5)
				So(got[0].Timestamp, ShouldEqual, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
				So(math.IsNaN(got[1].HealthScore), ShouldBeTrue)
			})
		})

		Convey("When scores are spelled as infinities or NaN", func() {
			in := "FACILITYID,EQUIPMENTID,TIMESTAMP,HEALTHSCORE\n" +
				"F1,PUMP-1,2024-03-01T08:00:00Z,+Inf\n" +
				"F1,PUMP-2,2024-03-01T09:00:00Z,-infinity\n" +
				"F1,PUMP-3,2024-03-01T10:00:00Z,NaN\n" +
				"F1,PUMP-4,2024-03-01T11:00:00Z,1e400\n"
			got, err := r.EquipmentReadings(ctx, strings.NewReader(in))

			Convey("Then every score is treated as missing", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 4)
				for _, g := range got {
					So(math.IsNaN(g.HealthScore), ShouldBeTrue)
				}
			})
		})

		Convey("When the file does not exist", func() {
			_, err := r.LoadEquipmentReadings(ctx, filepath.Join(t.TempDir(), "missing.csv"))

			Convey("Then it fails", func() {
				So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
			})
		})
	})
}

func TestCleanPriceSeries(t *testing.T) {
	Convey("Given unordered prices with gaps and a repeated date", t, func() {
		records := []model.PriceRecord{
			{Date: day("2024-01-03"), WTI: 72, Brent: 76},
			{Date: day("2024-01-01"), WTI: 70, Brent: 74},
			{Date: day("2024-01-02"), WTI: math.NaN(), Brent: 75},
			{Date: day("2024-01-01"), WTI: 70.5, Brent: 74.5},
		}

		Convey("When cleaned", func() {
			got := CleanPriceSeries(records)

			Convey("Then dates strictly increase and the last duplicate wins", func() {
				So(got, ShouldHaveLength, 2)
				So(got[0].Date, ShouldEqual, day("2024-01-01"))
				So(got[0].WTI, ShouldEqual, 70.5)
				So(got[1].Date, ShouldEqual, day("2024-01-03"))
			})
		})
	})
}

func TestWriters(t *testing.T) {
	Convey("Given records written to CSV", t, func() {
		ctx := context.Background()
		r := NewReader(WithLogger(logger.Nop()))

		Convey("When prices are written and read back", func() {
			var buf bytes.Buffer
			err := WritePriceSeries(&buf, []model.PriceRecord{
				{Date: day("2024-01-01"), WTI: 70.25, Brent: math.NaN()},
			})
			So(err, ShouldBeNil)
			got, err := r.PriceSeries(ctx, &buf)

			Convey("Then the values survive and NaN stays missing", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].WTI, ShouldEqual, 70.25)
				So(math.IsNaN(got[0].Brent), ShouldBeTrue)
			})
		})

		Convey("When readings are written to a file and loaded", func() {
			path := filepath.Join(t.TempDir(), "equipment.csv")
			f, err := os.Create(path)
			So(err, ShouldBeNil)
			ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			So(WriteEquipmentReadings(f, []model.EquipmentReading{
				{FacilityID: "F9", EquipmentID: "COMP-1", Timestamp: ts, HealthScore: 88.5},
			}), ShouldBeNil)
			So(f.Close(), ShouldBeNil)

			got, err := r.LoadEquipmentReadings(ctx, path)

			Convey("Then the reading is restored", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []model.EquipmentReading{
					{FacilityID: "F9", EquipmentID: "COMP-1", Timestamp: ts, HealthScore: 88.5},
				})
			})
		})
	})
}
