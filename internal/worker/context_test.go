package worker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"sttworker/internal/ocs"
)

func TestProvidersFromModelIDs(t *testing.T) {
	fc := newFakeClient(t)
	c := newTestContext(t, fc, &fakeModels{models: map[string]*fakeModel{"base": nil, "small": nil}}, false)
	ps := c.Providers()
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	want := []ocs.Provider{
		{ID: "stt_whisper2:base", Name: "Whisper: base", TaskType: "core:audio2text", ExpectedRuntime: 120},
		{ID: "stt_whisper2:small", Name: "Whisper: small", TaskType: "core:audio2text", ExpectedRuntime: 120},
	}
	if len(ps) != len(want) {
		t.Fatalf("providers = %+v", ps)
	}
	for i := range want {
		if ps[i] != want[i] {
			t.Errorf("provider %d = %+v, want %+v", i, ps[i], want[i])
		}
	}
	if len(c.ProviderIDs()) != 2 {
		t.Fatalf("provider ids = %v", c.ProviderIDs())
	}
}

func TestHandleEnabledRegistersAfterGate(t *testing.T) {
	fc := newFakeClient(t)
	c := newTestContext(t, fc, &fakeModels{models: map[string]*fakeModel{"base": nil, "small": nil}}, false)

	if msg := c.HandleEnabled(context.Background(), true); msg != "" {
		t.Fatalf("enable: %q", msg)
	}
	regs := fc.opsNamed("register")
	if len(regs) != 2 {
		t.Fatalf("register calls = %+v", regs)
	}
	for _, r := range regs {
		if !r.gateEnabled {
			t.Errorf("register %s ran before the gate opened", r.provider)
		}
	}
	if !c.Gate.Enabled() {
		t.Fatal("gate not enabled")
	}

	if msg := c.HandleEnabled(context.Background(), false); msg != "" {
		t.Fatalf("disable: %q", msg)
	}
	unregs := fc.opsNamed("unregister")
	if len(unregs) != 2 {
		t.Fatalf("unregister calls = %+v", unregs)
	}
	for _, u := range unregs {
		if u.gateEnabled {
			t.Errorf("unregister %s ran before the gate closed", u.provider)
		}
		if !u.ignoreMissing {
			t.Errorf("unregister %s should ignore missing providers", u.provider)
		}
	}
}

func TestHandleEnabledReportsErrors(t *testing.T) {
	fc := newFakeClient(t)
	fc.registerErr = map[string]error{"stt_whisper2:small": errors.New("boom")}
	c := newTestContext(t, fc, &fakeModels{models: map[string]*fakeModel{"base": nil, "small": nil}}, false)

	msg := c.HandleEnabled(context.Background(), true)
	if !strings.Contains(msg, "stt_whisper2:small") || !strings.Contains(msg, "boom") {
		t.Fatalf("message = %q", msg)
	}
	if len(fc.opsNamed("register")) != 2 {
		t.Fatal("a failing provider must not stop the others")
	}
	if !c.Gate.Enabled() {
		t.Fatal("gate should stay enabled despite registration errors")
	}
}

func TestHandleEnabledNoModels(t *testing.T) {
	fc := newFakeClient(t)
	c := newTestContext(t, fc, &fakeModels{}, false)
	if msg := c.HandleEnabled(context.Background(), true); msg != "" {
		t.Fatalf("msg = %q", msg)
	}
	if len(fc.ops()) != 0 {
		t.Fatalf("unexpected calls %+v", fc.ops())
	}
}

func TestApplyStartupState(t *testing.T) {
	fc := newFakeClient(t)
	c := newTestContext(t, fc, &fakeModels{models: map[string]*fakeModel{"base": nil}}, false)

	msg, applied := c.ApplyStartupState(context.Background(), true)
	if !applied || msg != "" {
		t.Fatalf("applied=%v msg=%q", applied, msg)
	}
	if !c.Gate.Enabled() || len(fc.opsNamed("register")) != 1 {
		t.Fatalf("gate=%v ops=%+v", c.Gate.Enabled(), fc.ops())
	}
}

func TestApplyStartupStateAfterControlPlane(t *testing.T) {
	fc := newFakeClient(t)
	c := newTestContext(t, fc, &fakeModels{models: map[string]*fakeModel{"base": nil}}, false)

	if msg := c.HandleEnabled(context.Background(), false); msg != "" {
		t.Fatalf("disable: %q", msg)
	}
	if _, applied := c.ApplyStartupState(context.Background(), true); applied {
		t.Fatal("stale startup state applied over a control-plane change")
	}
	if c.Gate.Enabled() {
		t.Fatal("gate enabled")
	}
	if regs := fc.opsNamed("register"); len(regs) != 0 {
		t.Fatalf("register calls = %+v", regs)
	}
}
