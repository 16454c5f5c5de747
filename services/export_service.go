package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"techfest-registration/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	soloColumns = []string{"registration id", "username", "full name", "email", "institute", "status", "fee", "reserved", "registered at"}
	teamColumns = []string{"registration id", "team", "leader", "members", "member count", "status", "fee", "reserved", "registered at"}
)

// ExportService renders event registrations as CSV for staff.
type ExportService struct {
	Registrations *RegistrationService
}

func NewExportService(registrations *RegistrationService) *ExportService {
	return &ExportService{Registrations: registrations}
}

// WriteEventRegistrations writes one row per registration of the event and
// returns the event so callers can name the attachment.
func (s *ExportService) WriteEventRegistrations(w io.Writer, viewer *models.Profile, eventPublicID string) (*models.Event, error) {
	regs, err := s.Registrations.ListForEvent(viewer, eventPublicID)
	if err != nil {
		return nil, err
	}
	e, err := eventByPublicID(s.Registrations.DB, eventPublicID)
	if err != nil {
		return nil, err
	}

	title := cases.Title(language.English)
	cw := csv.NewWriter(w)
	header := soloColumns
	if e.IsTeam() {
		header = teamColumns
	}
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range regs {
		state := r.State()
		var row []string
		if r.Solo != nil {
			p := r.Solo.Profile
			row = []string{
				r.Solo.PublicID,
				p.Username,
				title.String(p.FullName()),
				p.Email,
				p.InstituteName(),
				state.Status(),
				formatFee(state.Fee(e)),
				strconv.FormatBool(state.IsReserved),
				r.Solo.CreatedOn.UTC().Format(time.RFC3339),
			}
		} else {
			t := r.Team.Team
			var members []string
			for _, m := range t.Members() {
				members = append(members, m.Profile.Username)
			}
			row = []string{
				r.Team.PublicID,
				t.Name,
				t.Leader.Username,
				strings.Join(members, ";"),
				strconv.Itoa(t.MemberCount()),
				state.Status(),
				formatFee(state.Fee(e)),
				strconv.FormatBool(state.IsReserved),
				r.Team.CreatedOn.UTC().Format(time.RFC3339),
			}
		}
		for i := range row {
			row[i] = spreadsheetSafe(row[i])
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return e, nil
}

// spreadsheetSafe quotes cells a spreadsheet would evaluate as a formula.
func spreadsheetSafe(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

func formatFee(fee float64) string {
	return strconv.FormatFloat(fee, 'f', 2, 64)
}
