package main

import (
	"path/filepath"
	"strings"
)

// UnknownParty tags chunks from files no route matches.
const UnknownParty = "unknown"

type Party struct {
	ID    string   `yaml:"id"`
	Name  string   `yaml:"name"`
	Match []string `yaml:"match"`
}

func defaultParties() []Party {
	return []Party{
		{ID: "nc", Name: "नेपाली कांग्रेस (Nepali Congress)", Match: []string{"congress"}},
		{ID: "uml", Name: "नेकपा एमाले (CPN UML)", Match: []string{"uml"}},
		{ID: "rsp", Name: "राष्ट्रिय स्वतन्त्र पार्टी (Rastriya Swatantra Party)", Match: []string{"rsp"}},
		{ID: "ssp", Name: "श्रम संस्कृति पार्टी (Shram Sanskriti Party)", Match: []string{"shram"}},
	}
}

func defaultOCRFiles() []string {
	return []string{"RSP.pdf", "Shram Sanskriti.pdf"}
}

// Routes maps corpus file names to parties and extraction modes.
type Routes struct {
	parties []Party
	ocr     map[string]bool
}

func NewRoutes(parties []Party, ocrFiles []string) *Routes {
	ocr := make(map[string]bool, len(ocrFiles))
	for _, f := range ocrFiles {
		ocr[strings.ToLower(f)] = true
	}

	return &Routes{parties: parties, ocr: ocr}
}

// PartyFor returns the id of the first party, in table order, with a match
// fragment contained in the file name. Matching ignores case.
func (r *Routes) PartyFor(file string) string {
	name := strings.ToLower(filepath.Base(file))
	for _, p := range r.parties {
		for _, m := range p.Match {
			if m != "" && strings.Contains(name, strings.ToLower(m)) {
				return p.ID
			}
		}
	}

	return UnknownParty
}

// IsScanned reports whether the file has no usable text layer and must go
// through OCR.
func (r *Routes) IsScanned(file string) bool {
	return r.ocr[strings.ToLower(filepath.Base(file))]
}

func (r *Routes) OCRFiles() []string {
	res := make([]string, 0, len(r.ocr))
	for f := range r.ocr {
		res = append(res, f)
	}

	return res
}

// DisplayNames maps party id to display name.
func (r *Routes) DisplayNames() map[string]string {
	res := make(map[string]string, len(r.parties))
	for _, p := range r.parties {
		res[p.ID] = p.Name
	}

	return res
}

func (r *Routes) IDs() []string {
	res := make([]string, 0, len(r.parties))
	for _, p := range r.parties {
		res = append(res, p.ID)
	}

	return res
}
