package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SectionPrefix marks the keys of a raw filing that hold section text.
const SectionPrefix = "section"

// IsSectionKey reports whether a raw filing key names a section.
func IsSectionKey(key string) bool {
	return strings.HasPrefix(key, SectionPrefix)
}

// SortSectionKeys orders keys like section_1, section_1A, section_2, section_10.
func SortSectionKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		ni, si := splitSectionKey(keys[i])
		nj, sj := splitSectionKey(keys[j])
		if ni != nj {
			return ni < nj
		}
		if si != sj {
			return si < sj
		}
		return keys[i] < keys[j]
	})
}

func splitSectionKey(key string) (int, string) {
	rest := strings.TrimLeft(strings.TrimPrefix(key, SectionPrefix), "_- ")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 1 << 30, rest
	}
	n, _ := strconv.Atoi(rest[:end])
	return n, rest[end:]
}

// Bundle layout keys; every other top-level key is a section.
const (
	bundleCompanyID  = "company_id"
	bundleFiscalYear = "fiscal_year"
	bundleSplit      = "dataset_split"
)

// MarshalJSON writes the flat bundle layout:
// {company_id, fiscal_year, dataset_split, <section_key>: {item_number, item_name, chunks}}.
func (f *Filing) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Sections)+3)
	out[bundleCompanyID] = f.CompanyID
	out[bundleFiscalYear] = f.FiscalYear
	out[bundleSplit] = f.Split
	for key, sec := range f.Sections {
		if sec.Chunks == nil {
			out[key] = struct {
				ItemNumber string `json:"item_number"`
				ItemName   string `json:"item_name"`
			}{sec.ItemNumber, sec.ItemName}
			continue
		}
		out[key] = sec
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the layout written by MarshalJSON.
func (f *Filing) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Filing{Sections: make(map[string]*Section)}
	for key, msg := range raw {
		switch key {
		case bundleCompanyID:
			if err := json.Unmarshal(msg, &f.CompanyID); err != nil {
				return fmt.Errorf("bundle %s: %w", key, err)
			}
		case bundleFiscalYear:
			if err := json.Unmarshal(msg, &f.FiscalYear); err != nil {
				return fmt.Errorf("bundle %s: %w", key, err)
			}
		case bundleSplit:
			if err := json.Unmarshal(msg, &f.Split); err != nil {
				return fmt.Errorf("bundle %s: %w", key, err)
			}
		default:
			if !IsSectionKey(key) {
				continue
			}
			var sec Section
			if err := json.Unmarshal(msg, &sec); err != nil {
				return fmt.Errorf("bundle section %s: %w", key, err)
			}
			sec.Name = key
			f.Sections[key] = &sec
			f.TotalChunks += len(sec.Chunks)
		}
	}
	return nil
}
