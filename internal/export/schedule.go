package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"studiobook/internal/availability"
	"studiobook/internal/calendar"
	"studiobook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetWeekly   = "Weekly"
	SheetFree     = "Free slots"
	SheetBookings = "Bookings"
)

// Schedule is everything shown in an engineer's schedule workbook.
type Schedule struct {
	EngineerID int64
	From       time.Time
	To         time.Time
	Location   *time.Location
	Weekly     []models.Availability
	FreeSlots  []availability.DaySlots
	Bookings   []*models.Booking
}

// FileName is the suggested download name of the workbook.
func (s *Schedule) FileName() string {
	return fmt.Sprintf("schedule_%d_%s_to_%s.xlsx", s.EngineerID, calendar.DateKey(s.From), calendar.DateKey(s.To))
}

// Write renders the workbook to w.
func (s *Schedule) Write(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}

	if err := s.writeWeekly(f, header); err != nil {
		return err
	}
	if err := s.writeFreeSlots(f, header); err != nil {
		return err
	}
	if err := s.writeBookings(f, header); err != nil {
		return err
	}

	_ = f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(SheetFree); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func (s *Schedule) writeWeekly(f *excelize.File, header int) error {
	if err := newSheet(f, SheetWeekly, header, "Day", "Start", "End"); err != nil {
		return err
	}
	for i, a := range s.Weekly {
		if err := setRow(f, SheetWeekly, i+2, a.Day.String(), a.Start.String(), a.End.String()); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetWeekly, "A", "C", 14)
	return nil
}

func (s *Schedule) writeFreeSlots(f *excelize.File, header int) error {
	if err := newSheet(f, SheetFree, header, "Date", "Weekday", "Free slots", "Free minutes"); err != nil {
		return err
	}

	title := fmt.Sprintf("Engineer %d, %s - %s", s.EngineerID, s.From.Format("02.01.2006"), s.To.Format("02.01.2006"))
	_ = f.SetCellValue(SheetFree, "F1", title)

	for i, day := range s.FreeSlots {
		parts := make([]string, 0, len(day.Slots))
		var free time.Duration
		for _, slot := range day.Slots {
			parts = append(parts, slot.Start.In(s.loc()).Format("15:04")+"-"+slot.End.In(s.loc()).Format("15:04"))
			free += slot.Duration()
		}
		weekday := ""
		if d, err := calendar.ParseDate(day.Date); err == nil {
			weekday = d.Weekday().String()
		}
		if err := setRow(f, SheetFree, i+2, day.Date, weekday, strings.Join(parts, ", "), int(free.Minutes())); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetFree, "A", "B", 14)
	_ = f.SetColWidth(SheetFree, "C", "C", 40)
	_ = f.SetColWidth(SheetFree, "D", "D", 14)
	return nil
}

func (s *Schedule) writeBookings(f *excelize.File, header int) error {
	if err := newSheet(f, SheetBookings, header, "ID", "Start", "End", "Studio", "Customer", "State", "Phone", "Instagram", "Notes"); err != nil {
		return err
	}

	cancelled, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Strike: true, Color: "#808080"}})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	for i, b := range s.Bookings {
		row := i + 2
		if err := setRow(f, SheetBookings, row,
			b.ID,
			b.Start.In(s.loc()).Format("2006-01-02 15:04"),
			b.End.In(s.loc()).Format("2006-01-02 15:04"),
			b.StudioID,
			b.UserID,
			string(b.State),
			b.Phone,
			b.Instagram,
			b.Notes,
		); err != nil {
			return err
		}
		if !b.Active() {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(9, row)
			_ = f.SetCellStyle(SheetBookings, first, last, cancelled)
		}
	}
	_ = f.SetColWidth(SheetBookings, "B", "C", 18)
	_ = f.SetColWidth(SheetBookings, "G", "I", 20)
	return nil
}

func (s *Schedule) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func newSheet(f *excelize.File, name string, style int, headers ...interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("error creating sheet %s: %w", name, err)
	}
	if err := setRow(f, name, 1, headers...); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(name, "A1", last, style)
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("error writing row %d of %s: %w", row, sheet, err)
	}
	return nil
}
