package ui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lepinkainen/visiontagger/archive"
	"github.com/lepinkainen/visiontagger/batch"
)

func testTable(names ...string) *batch.Table {
	assets := make([]archive.ImageAsset, len(names))
	for i, name := range names {
		assets[i] = archive.ImageAsset{Name: name}
	}
	return batch.NewTable(assets)
}

func TestNewModel(t *testing.T) {
	model := NewModel(testTable("a.png", "b.jpg"), "dev")

	if model.totalRows != 2 {
		t.Errorf("Expected totalRows 2, got %d", model.totalRows)
	}
	if model.processedRows != 0 {
		t.Errorf("Expected processedRows 0, got %d", model.processedRows)
	}
	if model.phase != phaseLoading {
		t.Errorf("Expected initial phase to be loading")
	}
	if model.Version != "dev" {
		t.Errorf("Expected Version 'dev', got %q", model.Version)
	}
}

func TestModel_LoadProgress(t *testing.T) {
	model := NewModel(testTable("a.png"), "dev")

	updated, _ := model.Update(LoadProgressMsg{Status: "downloading weights", Percent: 42})
	m := updated.(Model)

	if m.loadPercent != 42 {
		t.Errorf("Expected loadPercent 42, got %d", m.loadPercent)
	}
	if m.loadStatus != "downloading weights" {
		t.Errorf("Expected loadStatus to update, got %q", m.loadStatus)
	}
}

func TestModel_LoadDoneStartsRunning(t *testing.T) {
	model := NewModel(testTable("a.png"), "dev")

	updated, cmd := model.Update(LoadDoneMsg{})
	m := updated.(Model)

	if m.phase != phaseRunning {
		t.Error("Expected phase running after successful load")
	}
	if cmd != nil {
		t.Error("Expected no command on successful load")
	}
}

func TestModel_LoadFailureQuits(t *testing.T) {
	model := NewModel(testTable("a.png"), "dev")

	loadErr := errors.New("no such model")
	updated, cmd := model.Update(LoadDoneMsg{Err: loadErr})
	m := updated.(Model)

	if m.LoadFailed() == nil {
		t.Error("Expected LoadFailed to report the error")
	}
	if cmd == nil {
		t.Fatal("Expected quit command on load failure")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.Quit on load failure")
	}
}

func TestModel_RowLifecycle(t *testing.T) {
	model := NewModel(testTable("a.png", "b.jpg"), "dev")

	updated, _ := model.Update(RowStartedMsg{Index: 0})
	m := updated.(Model)
	if m.statuses[0] != statusProcessing {
		t.Errorf("Expected processing status, got %q", m.statuses[0])
	}

	updated, _ = m.Update(RowDoneMsg{Index: 0})
	m = updated.(Model)
	if m.statuses[0] != statusDone {
		t.Errorf("Expected done status, got %q", m.statuses[0])
	}
	if m.processedRows != 1 {
		t.Errorf("Expected processedRows 1, got %d", m.processedRows)
	}

	updated, _ = m.Update(RowDoneMsg{Index: 1, Err: errors.New("generation failed")})
	m = updated.(Model)
	if m.statuses[1] != statusError {
		t.Errorf("Expected error status, got %q", m.statuses[1])
	}
}

func TestModel_BatchDoneQuits(t *testing.T) {
	model := NewModel(testTable("a.png"), "dev")

	updated, cmd := model.Update(BatchDoneMsg{})
	m := updated.(Model)

	if m.phase != phaseDone {
		t.Error("Expected phase done")
	}
	if cmd == nil {
		t.Fatal("Expected quit command when batch completes")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.Quit when batch completes")
	}
}

func TestModel_QuitKey(t *testing.T) {
	model := NewModel(testTable("a.png"), "dev")

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m := updated.(Model)

	if !m.quitting {
		t.Error("Expected quitting after q")
	}
	if cmd == nil {
		t.Error("Expected quit command")
	}
}

func TestRowItem_Description(t *testing.T) {
	tests := []struct {
		name     string
		item     RowItem
		expected string
	}{
		{"Empty response", RowItem{FileName: "a.png"}, "waiting..."},
		{"Short response", RowItem{Response: "a cat"}, "a cat"},
		{"Newlines flattened", RowItem{Response: "a\ncat"}, "a cat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Description(); got != tt.expected {
				t.Errorf("Description() = %q, expected %q", got, tt.expected)
			}
		})
	}
}
