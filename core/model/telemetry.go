package model

import "time"

// DeviceKind identifies which myenergi product a device is.
type DeviceKind string

const (
	KindEddi  DeviceKind = "eddi"
	KindZappi DeviceKind = "zappi"
)

// Prefix returns the single letter the device API uses before a serial number.
func (k DeviceKind) Prefix() string {
	switch k {
	case KindEddi:
		return "E"
	case KindZappi:
		return "Z"
	default:
		return ""
	}
}

// Zappi charge modes.
const (
	ChargeModeFast    = 1
	ChargeModeEco     = 2
	ChargeModeEcoPlus = 3
	ChargeModeStopped = 4
)

// EddiStatus is the heater state reported by an eddi.
type EddiStatus struct {
	TopTankC    float64 `json:"top_tank_c"`
	BottomTankC float64 `json:"bottom_tank_c"`
	HeaterWatts float64 `json:"heater_watts"`
	// ActiveRelay is 1 for the top tank heater and 2 for the bottom one. It
	// keeps its last value once the heater turns off.
	ActiveRelay int `json:"active_relay"`
}

// ZappiStatus is the charger state reported by a zappi.
type ZappiStatus struct {
	ChargeMode  int     `json:"charge_mode"`
	ChargeWatts float64 `json:"charge_watts"`
}

// Telemetry is an immutable snapshot returned by one poll. A nil section
// means the poll did not report that device.
type Telemetry struct {
	At    time.Time    `json:"at"`
	Eddi  *EddiStatus  `json:"eddi,omitempty"`
	Zappi *ZappiStatus `json:"zappi,omitempty"`
}

// HeaterOn reports whether the given relay is drawing power.
func (t Telemetry) HeaterOn(relay int) bool {
	return t.Eddi != nil && t.Eddi.ActiveRelay == relay && t.Eddi.HeaterWatts > 0
}

// Charging reports whether the zappi is delivering power.
func (t Telemetry) Charging() bool {
	return t.Zappi != nil && t.Zappi.ChargeWatts > 0
}
