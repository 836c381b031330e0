package safety

import (
	"reflect"
	"testing"
)

func Test_Filter_IsAllowed_Cases(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []string
		denylist  []string
		command   string
		want      bool
	}{
		{
			name:    "empty lists allow everything",
			command: "beeper.mute",
			want:    true,
		},
		{
			name:      "exact allowlist match",
			allowlist: []string{"beeper.mute", "test.battery.start"},
			command:   "test.battery.start",
			want:      true,
		},
		{
			name:      "not in allowlist is denied",
			allowlist: []string{"beeper.mute"},
			command:   "load.off",
			want:      false,
		},
		{
			name:     "glob denylist blocks every shutdown command",
			denylist: []string{"shutdown.*"},
			command:  "shutdown.reboot.graceful",
			want:     false,
		},
		{
			name:      "denylist wins over allowlist",
			allowlist: []string{"test.*"},
			denylist:  []string{"test.failure.*"},
			command:   "test.failure.start",
			want:      false,
		},
		{
			name:      "glob allowlist admits matching command",
			allowlist: []string{"test.battery.*"},
			command:   "test.battery.stop",
			want:      true,
		},
		{
			name:     "malformed pattern never matches",
			denylist: []string{"[load"},
			command:  "load.off",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(tt.allowlist, tt.denylist)
			if got := f.IsAllowed(tt.command); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func Test_Filter_NilAllowsEverything(t *testing.T) {
	var f *Filter
	if !f.IsAllowed("load.off") {
		t.Error("nil filter should allow every command")
	}
}

func Test_Filter_Apply_PreservesOrder(t *testing.T) {
	f := NewFilter(nil, []string{"load.*"})
	got := f.Apply([]string{"beeper.mute", "load.off", "test.battery.start", "load.on"})
	want := []string{"beeper.mute", "test.battery.start"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
}
