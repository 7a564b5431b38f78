package application

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/centroplan/pvpanel/internal/domain/model"
)

// csvHeader matches the columns shown in the dashboard's site table.
var csvHeader = []string{"Name", "Code", "Nominal Power (kWc)", "Address", "Client", "Commissioned"}

// WriteSitesCSV writes the given sites as a CSV export, one row per site in
// the order provided. Null power and dates become empty cells; an unassigned
// client becomes an empty cell.
func WriteSitesCSV(w io.Writer, sites []model.Site, clientNames map[int64]string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, site := range sites {
		var power string
		if site.NominalPower != nil {
			power = strconv.FormatFloat(*site.NominalPower, 'f', -1, 64)
		}

		var commissioned string
		if site.CommissionDate != nil {
			commissioned = site.CommissionDate.Format("2006-01-02")
		}

		var client string
		if site.ClientMapID != nil {
			client = clientNames[*site.ClientMapID]
		}

		row := []string{site.Name, site.Code, power, site.Address, client, commissioned}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for site %d: %w", site.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	return nil
}
