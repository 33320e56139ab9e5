package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/energysched/core/lifecycle"
	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/tariff"
)

// RequestFile is the file form of a charge request. Either RequiredMinutes
// or the three state-of-charge fields must be set.
type RequestFile struct {
	RequiredMinutes int     `json:"required_minutes" yaml:"required_minutes"`
	RateKW          float64 `json:"rate_kw" yaml:"rate_kw"`
	// Deadline is either a time of day ("07:30") or an RFC 3339 timestamp.
	Deadline   string  `json:"deadline" yaml:"deadline"`
	CurrentSoC float64 `json:"current_soc" yaml:"current_soc"`
	TargetSoC  float64 `json:"target_soc" yaml:"target_soc"`
	BatteryKWh float64 `json:"battery_kwh" yaml:"battery_kwh"`
}

// LoadRequest loads a RequestFile from a JSON or YAML file.
func LoadRequest(path string) (RequestFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return RequestFile{}, err
	}
	defer f.Close()
	return DecodeRequest(f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// DecodeRequest reads a RequestFile from r in the given format.
func DecodeRequest(r io.Reader, format string) (RequestFile, error) {
	var rf RequestFile
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&rf); err != nil {
			return rf, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&rf); err != nil {
			return rf, err
		}
	default:
		return rf, fmt.Errorf("unsupported format: %s", format)
	}
	return rf, nil
}

// ParseDeadline resolves a time of day or RFC 3339 timestamp relative to now.
// An empty string means no deadline.
func ParseDeadline(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if c, err := tariff.ParseClock(s); err == nil {
		return tariff.DeadlineAt(now, c), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline %q is neither HH:MM nor RFC 3339", s)
	}
	if !t.After(now) {
		return time.Time{}, fmt.Errorf("deadline %s is in the past", t.Format(time.RFC3339))
	}
	return t, nil
}

// ChargeRequest converts the file into a request. defaultRate is used when
// the file leaves the rate unset.
func (rf RequestFile) ChargeRequest(now time.Time, defaultRate float64) (model.ChargeRequest, error) {
	rate := rf.RateKW
	if rate == 0 {
		rate = defaultRate
	}
	deadline, err := ParseDeadline(rf.Deadline, now)
	if err != nil {
		return model.ChargeRequest{}, err
	}
	if rf.RequiredMinutes == 0 && rf.BatteryKWh > 0 {
		return model.ChargeRequestFromSoC(rf.CurrentSoC, rf.TargetSoC, rf.BatteryKWh, rate, deadline)
	}
	req := model.ChargeRequest{RequiredMinutes: rf.RequiredMinutes, RateKW: rate, Deadline: deadline}
	return req, req.ValidateQuantised()
}

// BoostRequest asks for the eddi heater to run now. Exactly one of Minutes
// and Until must be set.
type BoostRequest struct {
	Minutes int `json:"minutes" yaml:"minutes"`
	// Until is a time of day ("11:00") or an RFC 3339 timestamp.
	Until string `json:"until" yaml:"until"`
	// Relay is the heater to boost, 1 or 2. Zero selects relay 1.
	Relay int `json:"relay" yaml:"relay"`
}

// OffTime resolves when the boost ends.
func (b BoostRequest) OffTime(now time.Time) (time.Time, error) {
	switch {
	case b.Minutes != 0 && b.Until != "":
		return time.Time{}, fmt.Errorf("set either minutes or until, not both")
	case b.Minutes != 0:
		return lifecycle.BoostUntil(now, b.Minutes)
	case b.Until != "":
		return ParseDeadline(b.Until, now)
	}
	return time.Time{}, fmt.Errorf("boost needs minutes or until")
}

// RelayOrDefault returns the relay to boost.
func (b BoostRequest) RelayOrDefault() int {
	if b.Relay == 0 {
		return 1
	}
	return b.Relay
}
