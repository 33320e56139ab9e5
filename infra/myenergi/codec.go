// Package myenergi encodes device commands in the myenergi cloud API format
// and decodes its status payloads.
package myenergi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kilianp07/energysched/core/model"
)

// StatusCommand reads the status of every device on the hub.
const StatusCommand = "cgi-jstatus-*"

var validSlots = map[model.DeviceKind]map[int]bool{
	model.KindZappi: {11: true, 12: true, 13: true, 14: true},
	model.KindEddi:  {11: true, 12: true, 13: true, 14: true, 21: true, 22: true, 23: true, 24: true},
}

func checkSlot(kind model.DeviceKind, id int) error {
	if !validSlots[kind][id] {
		return fmt.Errorf("%d is not a valid %s schedule slot", id, kind)
	}
	return nil
}

// ScheduleCommand encodes one schedule slot:
// cgi-boost-time-<E|Z><serial>-<slot>-<HHMM>-<HMM>-<days>.
func ScheduleCommand(kind model.DeviceKind, serial string, s model.CompiledSlot) (string, error) {
	if err := checkSlot(kind, s.SlotID); err != nil {
		return "", err
	}
	if s.Duration <= 0 || s.Duration > model.MaxSlotDuration {
		return "", fmt.Errorf("slot %d duration %s is outside (0, %s]", s.SlotID, s.Duration, model.MaxSlotDuration)
	}
	h, m := s.DurationHM()
	days := s.Days
	if days == 0 {
		days = model.DayOf(s.Start)
	}
	return fmt.Sprintf("cgi-boost-time-%s%s-%02d-%02d%02d-%01d%02d-%s",
		kind.Prefix(), serial, s.SlotID, s.Start.Hour(), s.Start.Minute(), h, m, days), nil
}

// ClearCommand encodes a schedule with no on time and no days, which removes
// the slot.
func ClearCommand(kind model.DeviceKind, serial string, slotID int) (string, error) {
	if err := checkSlot(kind, slotID); err != nil {
		return "", err
	}
	return fmt.Sprintf("cgi-boost-time-%s%s-%02d-0000-000-00000000", kind.Prefix(), serial, slotID), nil
}

// ModeCommand sets the zappi charge mode.
func ModeCommand(serial string, mode int) (string, error) {
	if mode < model.ChargeModeFast || mode > model.ChargeModeStopped {
		return "", fmt.Errorf("zappi charge mode %d is invalid (1-4)", mode)
	}
	return fmt.Sprintf("cgi-zappi-mode-Z%s-%d-0-0-0000", serial, mode), nil
}

// ScheduleListCommand reads the schedule slots of a device.
func ScheduleListCommand(kind model.DeviceKind, serial string) string {
	return "cgi-boost-time-" + kind.Prefix() + serial
}

// ResponseStatus extracts the status field of a command response. Responses
// without one, such as status lists, report 0.
func ResponseStatus(data []byte) (int, error) {
	var r struct {
		Status *json.Number `json:"status"`
	}
	if len(data) == 0 || data[0] != '{' {
		return 0, nil
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if r.Status == nil {
		return 0, nil
	}
	v, err := strconv.Atoi(r.Status.String())
	if err != nil {
		return 0, fmt.Errorf("decode response status %q: %w", r.Status.String(), err)
	}
	return v, nil
}

type deviceStatus map[string]json.RawMessage

func (d deviceStatus) number(key string) (float64, bool) {
	raw, ok := d[key]
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func (d deviceStatus) serial() string {
	raw, ok := d["sno"]
	if !ok {
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func devices(group map[string]json.RawMessage, key string) ([]deviceStatus, error) {
	raw, ok := group[key]
	if !ok {
		return nil, nil
	}
	var out []deviceStatus
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s status: %w", key, err)
	}
	return out, nil
}

// DecodeStatus picks the eddi and zappi with the given serials out of a
// cgi-jstatus-* response. An empty serial skips that device.
func DecodeStatus(data []byte, eddiSerial, zappiSerial string, at time.Time) (model.Telemetry, error) {
	var groups []map[string]json.RawMessage
	if err := json.Unmarshal(data, &groups); err != nil {
		return model.Telemetry{}, fmt.Errorf("decode status: %w", err)
	}
	t := model.Telemetry{At: at}
	for _, g := range groups {
		eddis, err := devices(g, "eddi")
		if err != nil {
			return model.Telemetry{}, err
		}
		zappis, err := devices(g, "zappi")
		if err != nil {
			return model.Telemetry{}, err
		}
		for _, e := range eddis {
			if eddiSerial == "" || e.serial() != eddiSerial {
				continue
			}
			st := &model.EddiStatus{}
			st.TopTankC, _ = e.number("tp1")
			st.BottomTankC, _ = e.number("tp2")
			st.HeaterWatts, _ = e.number("ectp1")
			if hno, ok := e.number("hno"); ok {
				st.ActiveRelay = int(hno)
			}
			t.Eddi = st
		}
		for _, z := range zappis {
			if zappiSerial == "" || z.serial() != zappiSerial {
				continue
			}
			st := &model.ZappiStatus{}
			if zmo, ok := z.number("zmo"); ok {
				st.ChargeMode = int(zmo)
			}
			st.ChargeWatts, _ = z.number("ectp1")
			t.Zappi = st
		}
	}
	if eddiSerial != "" && t.Eddi == nil {
		return t, fmt.Errorf("eddi %s not found in status", eddiSerial)
	}
	if zappiSerial != "" && t.Zappi == nil {
		return t, fmt.Errorf("zappi %s not found in status", zappiSerial)
	}
	return t, nil
}

// ScheduleEntry is one slot read back from a device.
type ScheduleEntry struct {
	SlotID   int           `json:"slot_id"`
	Hour     int           `json:"hour"`
	Minute   int           `json:"minute"`
	Duration time.Duration `json:"duration"`
	Days     model.DayMask `json:"days"`
}

// Active reports whether the slot is set for any day.
func (e ScheduleEntry) Active() bool { return e.Days != 0 && e.Duration > 0 }

// DecodeScheduleList decodes the boost_times list of a schedule list
// response. Entries missing any field are skipped.
func DecodeScheduleList(data []byte) ([]ScheduleEntry, error) {
	var r struct {
		BoostTimes []struct {
			BDD *string `json:"bdd"`
			BDH *int    `json:"bdh"`
			BDM *int    `json:"bdm"`
			BSH *int    `json:"bsh"`
			BSM *int    `json:"bsm"`
			SLT *int    `json:"slt"`
		} `json:"boost_times"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode schedule list: %w", err)
	}
	var out []ScheduleEntry
	for _, b := range r.BoostTimes {
		if b.BDD == nil || b.BDH == nil || b.BDM == nil || b.BSH == nil || b.BSM == nil || b.SLT == nil {
			continue
		}
		days, err := model.ParseDayMask(*b.BDD)
		if err != nil {
			return nil, err
		}
		out = append(out, ScheduleEntry{
			SlotID:   *b.SLT,
			Hour:     *b.BSH,
			Minute:   *b.BSM,
			Duration: time.Duration(*b.BDH)*time.Hour + time.Duration(*b.BDM)*time.Minute,
			Days:     days,
		})
	}
	return out, nil
}
