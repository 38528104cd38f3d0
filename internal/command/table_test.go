package command

import (
	"testing"

	"github.com/alvinjay/fpsensor/internal/protocol"
)

func TestBuildUsesDefaultParams(t *testing.T) {
	p, err := GenChar.Build(protocol.DefaultAddress, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if p.Opcode() != protocol.OpGenChar {
		t.Errorf("Opcode = %v, want GenChar", p.Opcode())
	}
	if len(p.Parameters) != 1 || p.Parameters[0] != 0x01 {
		t.Errorf("Parameters = %v, want [0x01]", p.Parameters)
	}
}

func TestBuildOverridesParams(t *testing.T) {
	p, err := GenChar.Build(protocol.DefaultAddress, GenCharBuffer(2))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if p.Parameters[0] != 0x02 {
		t.Errorf("Parameters = %v, want [0x02]", p.Parameters)
	}
}

func TestDeleteCharParamsEncoding(t *testing.T) {
	got := DeleteCharParams(0x0005, 1)
	want := []byte{0x00, 0x05, 0x00, 0x01}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DeleteCharParams()[%d] = 0x%02X, want 0x%02X", i, got[i], want[i])
		}
	}
}

func TestSearchParamsEncoding(t *testing.T) {
	got := SearchParams(1, 0, 100)
	want := []byte{0x01, 0x00, 0x00, 0x00, 0x64}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SearchParams()[%d] = 0x%02X, want 0x%02X", i, got[i], want[i])
		}
	}
}
