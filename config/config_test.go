package config

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestConfig(t *testing.T) {
	var yaml = `
log:
  level: info
genesis:
  leaseDuration: 1000ms
  refreshAttestationDuration: 2h
`
	conf, err := unmarshal([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	if conf.Log.Level.Level() != zap.InfoLevel {
		t.Errorf("conf.level=%v, want %v", conf.Log.Level.Level(), zap.InfoLevel)
	}
	if conf.Log.Encoding != "console" {
		t.Errorf("conf.encoding=%v, want %v", conf.Log.Encoding, "console")
	}
	if conf.Genesis.LeaseDuration != time.Second {
		t.Errorf("conf.genesis.leaseDuration=%v, want %v", conf.Genesis.LeaseDuration, time.Second)
	}
	if conf.Genesis.RefreshAttestationDuration != 2*time.Hour {
		t.Errorf("conf.genesis.refreshAttestationDuration=%v, want %v", conf.Genesis.RefreshAttestationDuration, time.Hour*2)
	}
}
