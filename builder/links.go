package builder

import (
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// Columns of the link table.
const (
	PatientIDCol  = "patient_id"
	OriginalIDCol = "original_id"
)

// Link ties the image directory of a patient to its contour directory.
type Link struct {
	// PatientID names the directory under the image root.
	PatientID string

	// OriginalID names the directory under the contour root.
	OriginalID string
}

// ReadLinks reads the link table, a CSV file with a header holding at least
// the patient_id and original_id columns.
func ReadLinks(path string) ([]Link, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open link table %q", path)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.WithTypes(map[string]series.Type{
		PatientIDCol:  series.String,
		OriginalIDCol: series.String,
	}))
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "failed to parse link table %q", path)
	}
	patients := df.Col(PatientIDCol)
	if patients.Err != nil {
		return nil, errors.Wrapf(patients.Err, "link table %q", path)
	}
	originals := df.Col(OriginalIDCol)
	if originals.Err != nil {
		return nil, errors.Wrapf(originals.Err, "link table %q", path)
	}

	links := make([]Link, df.Nrow())
	for i, patient := range patients.Records() {
		links[i].PatientID = patient
	}
	for i, original := range originals.Records() {
		links[i].OriginalID = original
	}
	return links, nil
}
