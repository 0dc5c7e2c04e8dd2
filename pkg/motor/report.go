package motor

import (
	"encoding/json"
	"os"
	"time"
)

// Report is a saved scan result, written by the scan command and readable
// by tooling that wants to know what was on the bus and when.
type Report struct {
	Interface string    `json:"interface"`
	Bitrate   int       `json:"bitrate"`
	Time      time.Time `json:"time"`
	Results   []Info    `json:"results"`
}

// NewReport assembles a report from a completed range scan.
func NewReport(iface string, bitrate int, results []Info) *Report {
	return &Report{
		Interface: iface,
		Bitrate:   bitrate,
		Time:      time.Now(),
		Results:   results,
	}
}

// Online returns only the entries that answered.
func (r *Report) Online() []Info {
	var online []Info
	for _, info := range r.Results {
		if info.Online {
			online = append(online, info)
		}
	}
	return online
}

// Save writes the report as indented JSON.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadReport reads a report written by Save.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
