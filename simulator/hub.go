package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kilianp07/energysched/core/model"
)

// statusUnknownCommand is returned for commands the hub does not understand.
const statusUnknownCommand = -14

type slot struct {
	hour, minute int
	durH, durM   int
	days         string
}

// Hub keeps the state of the simulated eddi and zappi and answers device API
// commands against it.
type Hub struct {
	mu          sync.Mutex
	eddiSerial  string
	zappiSerial string
	zappiMode   int
	topTankC    float64
	bottomTankC float64
	slots       map[string]map[int]slot
}

// NewHub creates a hub holding the devices with the given serials. An empty
// serial leaves that device out.
func NewHub(eddiSerial, zappiSerial string) *Hub {
	return &Hub{
		eddiSerial:  eddiSerial,
		zappiSerial: zappiSerial,
		zappiMode:   model.ChargeModeEcoPlus,
		topTankC:    48,
		bottomTankC: 35,
		slots:       map[string]map[int]slot{},
	}
}

// Handle executes one command and returns the ack status and data.
func (h *Hub) Handle(command string) (int, json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case command == "cgi-jstatus-*":
		return h.status()
	case strings.HasPrefix(command, "cgi-boost-time-"):
		return h.boostTime(strings.TrimPrefix(command, "cgi-boost-time-"))
	case strings.HasPrefix(command, "cgi-zappi-mode-Z"):
		return h.zappiModeCmd(strings.TrimPrefix(command, "cgi-zappi-mode-Z"))
	}
	return statusUnknownCommand, nil
}

func (h *Hub) status() (int, json.RawMessage) {
	var groups []map[string]any
	if h.eddiSerial != "" {
		heater := 0.0
		if h.active(model.KindEddi.Prefix() + h.eddiSerial) {
			heater = 3000
		}
		groups = append(groups, map[string]any{"eddi": []map[string]any{{
			"sno": h.eddiSerial, "tp1": h.topTankC, "tp2": h.bottomTankC, "hno": 1, "ectp1": heater,
		}}})
	}
	if h.zappiSerial != "" {
		groups = append(groups, map[string]any{"zappi": []map[string]any{{
			"sno": h.zappiSerial, "zmo": h.zappiMode, "ectp1": 0,
		}}})
	}
	return ok(groups)
}

func (h *Hub) active(key string) bool {
	for _, s := range h.slots[key] {
		if s.days != "00000000" && s.durH+s.durM > 0 {
			return true
		}
	}
	return false
}

// boostTime handles both the schedule list (<E|Z><serial>) and the schedule
// set (<E|Z><serial>-<slot>-<HHMM>-<HMM>-<days>) forms.
func (h *Hub) boostTime(args string) (int, json.RawMessage) {
	parts := strings.Split(args, "-")
	key := parts[0]
	if !h.known(key) {
		return statusUnknownCommand, nil
	}
	if len(parts) == 1 {
		return h.list(key)
	}
	if len(parts) != 5 || len(parts[2]) != 4 || len(parts[3]) != 3 {
		return statusUnknownCommand, nil
	}
	id, err1 := strconv.Atoi(parts[1])
	hour, err2 := strconv.Atoi(parts[2][:2])
	minute, err3 := strconv.Atoi(parts[2][2:])
	durH, err4 := strconv.Atoi(parts[3][:1])
	durM, err5 := strconv.Atoi(parts[3][1:])
	if err := firstErr(err1, err2, err3, err4, err5); err != nil {
		return statusUnknownCommand, nil
	}
	if _, err := model.ParseDayMask(parts[4]); err != nil {
		return statusUnknownCommand, nil
	}
	if h.slots[key] == nil {
		h.slots[key] = map[int]slot{}
	}
	if parts[4] == "00000000" {
		delete(h.slots[key], id)
	} else {
		h.slots[key][id] = slot{hour: hour, minute: minute, durH: durH, durM: durM, days: parts[4]}
	}
	return ok(map[string]int{"status": 0})
}

func (h *Hub) list(key string) (int, json.RawMessage) {
	ids := make([]int, 0, len(h.slots[key]))
	for id := range h.slots[key] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	times := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		s := h.slots[key][id]
		times = append(times, map[string]any{
			"slt": id, "bsh": s.hour, "bsm": s.minute, "bdh": s.durH, "bdm": s.durM, "bdd": s.days,
		})
	}
	return ok(map[string]any{"boost_times": times})
}

func (h *Hub) zappiModeCmd(args string) (int, json.RawMessage) {
	parts := strings.Split(args, "-")
	if len(parts) < 2 || parts[0] != h.zappiSerial || h.zappiSerial == "" {
		return statusUnknownCommand, nil
	}
	mode, err := strconv.Atoi(parts[1])
	if err != nil || mode < model.ChargeModeFast || mode > model.ChargeModeStopped {
		return statusUnknownCommand, nil
	}
	h.zappiMode = mode
	return ok(map[string]int{"status": 0})
}

func (h *Hub) known(key string) bool {
	switch {
	case h.eddiSerial != "" && key == model.KindEddi.Prefix()+h.eddiSerial:
		return true
	case h.zappiSerial != "" && key == model.KindZappi.Prefix()+h.zappiSerial:
		return true
	}
	return false
}

func ok(v any) (int, json.RawMessage) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal hub response: %v", err))
	}
	return 0, data
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
