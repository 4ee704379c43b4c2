package calendar

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// holidayFile is the on-disk layout of a holiday table.
type holidayFile struct {
	Holidays []Holiday `yaml:"holidays"`
}

// DefaultHolidays returns the fixed-date Brazilian national holidays.
func DefaultHolidays() []Holiday {
	return []Holiday{
		{Day: 1, Month: 1, Name: "Confraternização Universal"},
		{Day: 21, Month: 4, Name: "Tiradentes"},
		{Day: 1, Month: 5, Name: "Dia do Trabalho"},
		{Day: 7, Month: 9, Name: "Independência"},
		{Day: 12, Month: 10, Name: "Nossa Senhora Aparecida"},
		{Day: 2, Month: 11, Name: "Finados"},
		{Day: 15, Month: 11, Name: "Proclamação da República"},
		{Day: 20, Month: 11, Name: "Consciência Negra"},
		{Day: 25, Month: 12, Name: "Natal"},
	}
}

// LoadHolidays reads a YAML holiday table. An empty path returns
// DefaultHolidays.
func LoadHolidays(path string) ([]Holiday, error) {
	if path == "" {
		return DefaultHolidays(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "calendar: read holidays %s", path)
	}
	return ParseHolidays(data)
}

// ParseHolidays decodes and validates a YAML holiday table.
func ParseHolidays(data []byte) ([]Holiday, error) {
	var f holidayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "calendar: parse holidays")
	}
	for _, h := range f.Holidays {
		if h.Month < 1 || h.Month > 12 || h.Day < 1 || h.Day > 31 {
			return nil, eris.Errorf("calendar: invalid holiday %02d/%02d (%s)", h.Day, h.Month, h.Name)
		}
	}
	return f.Holidays, nil
}
