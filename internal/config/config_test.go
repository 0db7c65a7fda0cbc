package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.InstancesTimezoneType != "AUTO" {
		t.Errorf("InstancesTimezoneType default = %q, want AUTO", cfg.InstancesTimezoneType)
	}
	if cfg.DBMaxConns != 4 || cfg.DBMinConns != 1 {
		t.Errorf("DB conn defaults = (%d,%d), want (4,1)", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.AlarmSchedulerDelay.Seconds() != 5 {
		t.Errorf("AlarmSchedulerDelay default = %s, want 5s", cfg.AlarmSchedulerDelay)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("INSTANCES_TIMEZONE_TYPE", "HOME")
	t.Setenv("INSTANCES_HOME_TIMEZONE", "America/Chicago")
	t.Setenv("ALARM_SCHEDULER_DELAY_SECONDS", "10")
	t.Setenv("MINIMUM_EXPANSION_SPAN_DAYS", "30")
	t.Setenv("DB_MAX_CONNS", "20")

	cfg := Load()
	if cfg.InstancesTimezoneType != "HOME" {
		t.Errorf("InstancesTimezoneType = %q, want HOME", cfg.InstancesTimezoneType)
	}
	if cfg.InstancesHomeTimezone != "America/Chicago" {
		t.Errorf("InstancesHomeTimezone = %q, want America/Chicago", cfg.InstancesHomeTimezone)
	}
	if cfg.AlarmSchedulerDelay.Seconds() != 10 {
		t.Errorf("AlarmSchedulerDelay = %s, want 10s", cfg.AlarmSchedulerDelay)
	}
	if cfg.MinimumExpansionSpan.Hours() != 30*24 {
		t.Errorf("MinimumExpansionSpan = %s, want 720h", cfg.MinimumExpansionSpan)
	}
	if cfg.DBMaxConns != 20 {
		t.Errorf("DBMaxConns = %d, want 20", cfg.DBMaxConns)
	}
}

func TestLoadInvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg := Load()
	if cfg.DBMaxConns != 4 {
		t.Errorf("DBMaxConns = %d, want default 4 on invalid input", cfg.DBMaxConns)
	}
}
