package extension

import (
	"testing"
	"time"
)

func TestMergeWithDefaults(t *testing.T) {
	got := mergeWithDefaults(Config{GlobalLimit: 5, BasePath: "/stars"})
	if got.GlobalLimit != 5 {
		t.Errorf("GlobalLimit: got %d, want 5", got.GlobalLimit)
	}
	if got.BasePath != "/stars" {
		t.Errorf("BasePath: got %q, want /stars", got.BasePath)
	}
	d := DefaultConfig()
	if got.QuestCooldown != d.QuestCooldown {
		t.Errorf("QuestCooldown: got %v, want %v", got.QuestCooldown, d.QuestCooldown)
	}
	if got.DefaultTimezone != "UTC" {
		t.Errorf("DefaultTimezone: got %q, want UTC", got.DefaultTimezone)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{BasePath: "/from-yaml", QuestCooldown: time.Minute}
	prog := Config{
		BasePath:        "/from-code",
		DisableRoutes:   true,
		DefaultTimezone: "Europe/Berlin",
		QuestCooldown:   time.Hour,
	}

	got := mergeConfigurations(yaml, prog)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"base path from yaml", got.BasePath, "/from-yaml"},
		{"cooldown from yaml", got.QuestCooldown, time.Minute},
		{"timezone fills gap", got.DefaultTimezone, "Europe/Berlin"},
		{"disable routes sticks", got.DisableRoutes, true},
		{"limit defaulted", got.GlobalLimit, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}
