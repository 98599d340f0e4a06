package panel

import "testing"

func TestDeriveStatePriority(t *testing.T) {
	cases := []struct {
		name string
		c    PartitionCondition
		want State
	}{
		{"disarmed", 0, StateDisarmed},
		{"armed away", CondArmed, StateArmedAway},
		{"armed home", CondArmed | CondStayMode, StateArmedHome},
		{"entry delay while armed+stay overrides armed_home", CondArmed | CondStayMode | CondEntryDelay, StatePending},
		{"siren overrides armed", CondArmed | CondSirenOn, StateTriggered},
		{"previous alarm overrides everything else", CondPreviousAlarm | CondArmed | CondStayMode, StateTriggered},
		{"exit delay while not armed yet", CondExitDelay1, StateArming},
		{"exit delay after armed is not arming", CondArmed | CondExitDelay1, StateArmedAway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveState(tc.c); got != tc.want {
				t.Fatalf("DeriveState(%b) = %v, want %v", tc.c, got, tc.want)
			}
		})
	}
}

func TestDeriveStateDeterministic(t *testing.T) {
	c := CondArmed | CondStayMode | CondReadyToArm
	first := DeriveState(c)
	for i := 0; i < 100; i++ {
		if DeriveState(c) != first {
			t.Fatal("DeriveState is not deterministic")
		}
	}
}

func TestZoneFlagDecoding(t *testing.T) {
	z := &Zone{}

	z.SetMasks(0, 0, ZCondFaulted)
	if !z.Faulted() || z.Bypassed() || z.Trouble() {
		t.Fatalf("expected faulted only, got faulted=%v bypassed=%v trouble=%v", z.Faulted(), z.Bypassed(), z.Trouble())
	}

	z.SetMasks(0, 0, ZCondBypassed)
	if z.Faulted() || !z.Bypassed() || z.Trouble() {
		t.Fatalf("expected bypassed only, got faulted=%v bypassed=%v trouble=%v", z.Faulted(), z.Bypassed(), z.Trouble())
	}

	troubleBitsToTest := []ZoneCondition{ZCondTampered, ZCondTrouble, ZCondInhibited, ZCondLowBattery, ZCondSupervisionLost, zCondReserved7}
	for _, b := range troubleBitsToTest {
		z.SetMasks(0, 0, b)
		if !z.Trouble() {
			t.Fatalf("bit %b should set trouble=true", b)
		}
		if z.Faulted() || z.Bypassed() {
			t.Fatalf("bit %b should not affect faulted/bypassed", b)
		}
	}

	z.SetMasks(0, 0, 0)
	if z.Trouble() {
		t.Fatal("trouble should be false when no trouble bit is set")
	}
}

func TestRegistryNoGrowAfterSync(t *testing.T) {
	m := NewModel("caddx_panel")
	if _, err := m.AddPartition(1); err != nil {
		t.Fatalf("AddPartition: %v", err)
	}
	if _, err := m.AddZone(1, "Front Door"); err != nil {
		t.Fatalf("AddZone: %v", err)
	}
	m.Synced = true

	if _, err := m.AddPartition(2); err == nil {
		t.Fatal("expected AddPartition to fail after sync")
	}
	if _, err := m.AddZone(2, "Back Door"); err == nil {
		t.Fatal("expected AddZone to fail after sync")
	}
	if len(m.Partitions()) != 1 || len(m.Zones()) != 1 {
		t.Fatal("registries grew after sync")
	}
}

func TestZoneNameEmptyDetection(t *testing.T) {
	if !IsEmptyZoneName("\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00") {
		t.Fatal("all-zero name should be detected as empty")
	}
	if IsEmptyZoneName("Front Door") {
		t.Fatal("non-empty name should not be detected as empty")
	}
}
