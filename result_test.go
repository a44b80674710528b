package aggui

import (
	"errors"
	"net/http"
	"testing"
)

type testResultProps struct {
	Href string
	Size int
}

func TestResultConstructors(t *testing.T) {
	props := testResultProps{Href: "/api/aggregators/1", Size: 2}
	boom := errors.New("boom")

	ok := OK(props)
	if ok.GetProps() != props || ok.GetErr() != nil || !ok.ShouldRender() {
		t.Errorf("OK() = %+v", ok)
	}

	failed := Err(props, boom)
	if failed.GetErr() != boom || failed.GetProps() != props {
		t.Errorf("Err() = %+v", failed)
	}
}

func TestResultDefaults(t *testing.T) {
	r := OK(testResultProps{})

	switch {
	case len(r.GetFlashes()) != 0, len(r.GetAlerts()) != 0:
		t.Error("messages should be empty")
	case r.GetTrigger() != "", r.GetTriggerData() != nil:
		t.Error("triggers should be empty")
	case len(r.GetHeaders()) != 0:
		t.Error("headers should be empty")
	case r.GetStatus() != 0:
		t.Error("status should be unset")
	}
}

func TestResultMessages(t *testing.T) {
	r := OK(testResultProps{}).
		Flash(FlashSuccess, "Aggregator created").
		Flash(FlashWarning, "Page size too large").
		Alert(FlashError, "Your copy is stale.")

	flashes := r.GetFlashes()
	if len(flashes) != 2 || flashes[0] != (Flash{FlashSuccess, "Aggregator created"}) || flashes[1].Level != FlashWarning {
		t.Errorf("GetFlashes() = %+v", flashes)
	}
	alerts := r.GetAlerts()
	if len(alerts) != 1 || alerts[0] != (Flash{FlashError, "Your copy is stale."}) {
		t.Errorf("GetAlerts() = %+v", alerts)
	}
}

func TestResultNoRender(t *testing.T) {
	r := OK(testResultProps{}).NoRender()

	if r.ShouldRender() {
		t.Error("ShouldRender() = true after NoRender()")
	}
	if len(r.Flash(FlashInfo, "kept").GetFlashes()) != 1 {
		t.Error("NoRender() should still carry messages")
	}
}

func TestResultChaining(t *testing.T) {
	props := testResultProps{Href: "/api/aggregators/7"}
	r := OK(props).
		Trigger("aggregators", map[string]any{"page": 2}).
		Header("X-Aggregator", "7").
		Status(http.StatusCreated)

	if r.GetTrigger() != "aggregators" || r.GetTriggerData()["page"] != 2 {
		t.Errorf("trigger = %q %v", r.GetTrigger(), r.GetTriggerData())
	}
	h := r.GetHeaders()
	if h["X-Aggregator"] != "7" {
		t.Errorf("GetHeaders() = %v", h)
	}
	if r.GetStatus() != http.StatusCreated {
		t.Errorf("GetStatus() = %d", r.GetStatus())
	}
	if r.GetProps() != props {
		t.Error("props lost while chaining")
	}
}
