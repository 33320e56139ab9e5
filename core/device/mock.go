package device

import (
	"context"
	"sync"

	"github.com/kilianp07/energysched/core/model"
)

// MockClient records commands and replays queued errors. It is used in tests
// and by the plan command's dry run.
type MockClient struct {
	mu        sync.Mutex
	Pushed    [][]model.CompiledSlot
	Cleared   [][]int
	Modes     []int
	Telemetry model.Telemetry
	// Errs are returned by successive calls of any command, one per call,
	// before calls start succeeding.
	Errs  []error
	Calls []string
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient { return &MockClient{} }

func (m *MockClient) next(op string) error {
	m.Calls = append(m.Calls, op)
	if len(m.Errs) == 0 {
		return nil
	}
	err := m.Errs[0]
	m.Errs = m.Errs[1:]
	return err
}

func (m *MockClient) Push(_ context.Context, slots []model.CompiledSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.next("push"); err != nil {
		return err
	}
	m.Pushed = append(m.Pushed, append([]model.CompiledSlot(nil), slots...))
	return nil
}

func (m *MockClient) Clear(_ context.Context, slotIDs []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.next("clear"); err != nil {
		return err
	}
	m.Cleared = append(m.Cleared, append([]int(nil), slotIDs...))
	return nil
}

func (m *MockClient) ReadTelemetry(context.Context) (model.Telemetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.next("telemetry"); err != nil {
		return model.Telemetry{}, err
	}
	return m.Telemetry, nil
}

func (m *MockClient) SetChargeMode(_ context.Context, mode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.next("mode"); err != nil {
		return err
	}
	m.Modes = append(m.Modes, mode)
	return nil
}

// Snapshot returns copies of the recorded calls.
func (m *MockClient) Snapshot() (calls []string, pushed [][]model.CompiledSlot, cleared [][]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...), append([][]model.CompiledSlot(nil), m.Pushed...), append([][]int(nil), m.Cleared...)
}
