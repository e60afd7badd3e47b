package calendar

import (
	"time"

	"github.com/aristath/horizon/internal/domain"
)

// DefaultHolidays returns the NSE trading holiday calendar for 2024-2025.
// Dates are announced by the exchange each December; extend this table when
// the next year's list is published.
func DefaultHolidays() []domain.Holiday {
	entries := []struct {
		date string
		name string
	}{
		// 2024
		{"2024-01-26", "Republic Day"},
		{"2024-03-08", "Maha Shivaratri"},
		{"2024-03-25", "Holi"},
		{"2024-03-29", "Good Friday"},
		{"2024-04-11", "Id-Ul-Fitr"},
		{"2024-04-17", "Ram Navami"},
		{"2024-04-21", "Mahavir Jayanti"},
		{"2024-05-01", "Maharashtra Day"},
		{"2024-05-23", "Buddha Purnima"},
		{"2024-06-17", "Bakri Id"},
		{"2024-07-17", "Muharram"},
		{"2024-08-15", "Independence Day"},
		{"2024-08-26", "Janmashtami"},
		{"2024-10-02", "Gandhi Jayanti"},
		{"2024-10-12", "Dussehra"},
		{"2024-11-01", "Diwali (Laxmi Puja)"},
		{"2024-11-02", "Diwali Balipratipada"},
		{"2024-11-15", "Gurunanak Jayanti"},
		{"2024-12-25", "Christmas"},

		// 2025
		{"2025-01-26", "Republic Day"},
		{"2025-03-14", "Holi"},
		{"2025-03-31", "Id-Ul-Fitr"},
		{"2025-04-10", "Mahavir Jayanti"},
		{"2025-04-14", "Dr. Ambedkar Jayanti"},
		{"2025-04-18", "Good Friday"},
		{"2025-05-01", "Maharashtra Day"},
		{"2025-08-15", "Independence Day"},
		{"2025-10-02", "Gandhi Jayanti"},
		{"2025-10-21", "Dussehra"},
		{"2025-11-01", "Diwali (Laxmi Puja)"},
		{"2025-11-05", "Gurunanak Jayanti"},
		{"2025-12-25", "Christmas"},
	}

	holidays := make([]domain.Holiday, 0, len(entries))
	for _, e := range entries {
		d, err := time.Parse(domain.DateFormat, e.date)
		if err != nil {
			// Static table; a parse failure is a programming error.
			panic(err)
		}
		holidays = append(holidays, domain.Holiday{Name: e.name, Date: d})
	}
	return holidays
}
