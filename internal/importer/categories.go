package importer

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/civic-stack/triage311/internal/fetcher"
	"github.com/civic-stack/triage311/internal/store"
)

// departmentNames maps export department codes to display names.
var departmentNames = map[string]string{
	"PWDx": "Public Works",
	"BTDT": "Transportation",
	"PARK": "Parks & Recreation",
	"ANML": "Animal Control",
	"ISD":  "Inspectional Services",
	"BWSC": "Water & Sewer",
	"PROP": "Property Management",
	"ONS_": "Neighborhood Services",
	"BPD_": "Police",
	"BPS_": "Public Schools",
	"GRNi": "Green Initiatives",
	"DISB": "Disability Services",
	"BHA_": "Housing Authority",
	"DND_": "Development & Neighborhoods",
	"INFO": "Information Services",
	"GEN_": "Mayor's Office",
	"No Q": "Unassigned",
}

// DepartmentName resolves an export department code, falling back to a
// title-cased version of the code itself for unmapped values.
func DepartmentName(code string) string {
	code = strings.TrimSpace(code)
	if name, ok := departmentNames[code]; ok {
		return name
	}
	return cases.Title(language.AmericanEnglish).String(strings.ToLower(code))
}

// Category pairs a request category with its owning department.
type Category struct {
	Name       string
	Department string
}

// ExtractCategories scans a 311 export and returns the distinct
// category/department pairs it uses, sorted by department then name.
func ExtractCategories(ctx context.Context, r io.Reader) ([]Category, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var idx map[string]int
	select {
	case header, ok := <-headerCh:
		if !ok {
			if err := <-errCh; err != nil {
				return nil, err
			}
			return nil, nil
		}
		idx = fetcher.HeaderIndex(header)
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "importer: waiting for header")
	}
	if _, ok := idx["reason"]; !ok {
		return nil, eris.New("importer: file has no reason column")
	}

	seen := make(map[Category]struct{})
	for row := range rowCh {
		name := fetcher.Field(row, idx, "reason")
		if name == "" {
			continue
		}
		dept := fetcher.Field(row, idx, "department")
		if dept == "" {
			// Some exports carry the display name in subject instead of a code.
			dept = fetcher.Field(row, idx, "subject")
		} else {
			dept = DepartmentName(dept)
		}
		seen[Category{Name: name, Department: dept}] = struct{}{}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	cats := make([]Category, 0, len(seen))
	for c := range seen {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Department != cats[j].Department {
			return cats[i].Department < cats[j].Department
		}
		return cats[i].Name < cats[j].Name
	})
	return cats, nil
}

// ApplyCategories writes the extracted reference data into the store.
func ApplyCategories(ctx context.Context, s store.Store, cats []Category) error {
	depts := make(map[string]struct{})
	for _, c := range cats {
		if c.Department == "" {
			continue
		}
		if _, ok := depts[c.Department]; !ok {
			if err := s.EnsureDepartment(ctx, c.Department, ""); err != nil {
				return err
			}
			depts[c.Department] = struct{}{}
		}
	}
	for _, c := range cats {
		if err := s.EnsureCategory(ctx, c.Name, c.Department); err != nil {
			return err
		}
	}
	zap.L().Info("importer: reference data applied",
		zap.Int("departments", len(depts)),
		zap.Int("categories", len(cats)),
	)
	return nil
}
