package mavlink

import (
	"testing"

	"github.com/sigurn/crc16"
)

func TestX25Table_CheckValue(t *testing.T) {
	if got := crc16.Checksum([]byte("123456789"), x25Table); got != 0x6F91 {
		t.Errorf("checksum(123456789) = 0x%04X, want 0x6F91", got)
	}
}

func TestComputeCRCExtra(t *testing.T) {
	tests := []struct {
		def  *Definition
		want byte
	}{
		{HeartbeatDefinition, 50},
		{ScaledIMUDefinition, 170},
		{CompositeDefinition, 77},
	}
	for _, tt := range tests {
		t.Run(tt.def.Name, func(t *testing.T) {
			if tt.def.CRCExtra != tt.want {
				t.Errorf("CRCExtra = %d, want %d", tt.def.CRCExtra, tt.want)
			}
		})
	}
}

func TestDefinitionLengths(t *testing.T) {
	tests := []struct {
		def           *Definition
		length, minLn int
	}{
		{HeartbeatDefinition, 9, 9},
		{ScaledIMUDefinition, 24, 22},
		{CompositeDefinition, 22, 22},
	}
	for _, tt := range tests {
		if tt.def.Length != tt.length || tt.def.MinLength != tt.minLn {
			t.Errorf("%s: Length=%d MinLength=%d, want %d/%d",
				tt.def.Name, tt.def.Length, tt.def.MinLength, tt.length, tt.minLn)
		}
	}
}

func TestWireOrder_SortsBySizeStable(t *testing.T) {
	got := wireOrder(HeartbeatDefinition.Fields)
	want := []string{"custom_mode", "type", "autopilot", "base_mode", "system_status", "mavlink_version"}
	for i, f := range got {
		if f.Name != want[i] {
			t.Fatalf("wireOrder[%d] = %s, want %s", i, f.Name, want[i])
		}
	}
}
