package pipebus

import (
	"context"
	"strings"
	"testing"
)

const sampleConfig = `
pipelines:
  - id: ingest
    send_to: [es, http]
    ensure_delivery: false
  - id: es
    address: es
    capacity: 64
  - id: http
    address: http
`

func TestParsePipelines(t *testing.T) {
	cfgs, err := ParsePipelines([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfgs) != 3 {
		t.Fatalf("got %d pipelines", len(cfgs))
	}

	ingest := cfgs[0]
	if ingest.ID != "ingest" || ingest.Ensure() {
		t.Fatalf("ingest parsed wrong: %+v", ingest)
	}
	if len(ingest.SendTo) != 2 || ingest.SendTo[0] != "es" || ingest.SendTo[1] != "http" {
		t.Fatalf("send_to order lost: %v", ingest.SendTo)
	}

	es := cfgs[1]
	if es.Address != "es" || es.Capacity != 64 {
		t.Fatalf("es parsed wrong: %+v", es)
	}
	if !es.Ensure() {
		t.Fatal("ensure_delivery must default to true")
	}
}

func TestParsePipelinesValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing id",
			yaml: "pipelines:\n  - address: a\n",
			want: "id is required",
		},
		{
			name: "no address or send_to",
			yaml: "pipelines:\n  - id: p\n",
			want: "needs an address or a send_to list",
		},
		{
			name: "duplicate address",
			yaml: "pipelines:\n  - id: p1\n    address: a\n  - id: p2\n    address: a\n",
			want: "claimed by both",
		},
		{
			name: "empty send_to entry",
			yaml: "pipelines:\n  - id: p\n    send_to: [ok, \"\"]\n",
			want: "empty send_to entry",
		},
		{
			name: "malformed yaml",
			yaml: "pipelines: [",
			want: "invalid pipeline config",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePipelines([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEndpointsFromConfig(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	cfgs, err := ParsePipelines([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	inputs := map[string]*Input{}
	for _, cfg := range cfgs {
		if cfg.Address == "" {
			continue
		}
		in, err := bus.OpenInputFromConfig(cfg)
		if err != nil {
			t.Fatalf("input %q: %v", cfg.Address, err)
		}
		inputs[cfg.Address] = in
	}
	if inputs["es"].Cap() != 64 {
		t.Fatalf("configured capacity lost: %d", inputs["es"].Cap())
	}

	out, err := bus.NewOutputFromConfig(cfgs[0])
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if err := out.Send(ctx, NewEvent(map[string]any{"msg": "cfg"})); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, addr := range []string{"es", "http"} {
		ev, err := inputs[addr].Receive(ctx)
		if err != nil {
			t.Fatalf("receive %q: %v", addr, err)
		}
		if ev.Fields["msg"] != "cfg" || ev.Origin != "ingest" {
			t.Fatalf("%q got wrong event: %+v", addr, ev)
		}
	}

	if _, err := bus.OpenInputFromConfig(cfgs[0]); err == nil {
		t.Fatal("input from config without address should fail")
	}
}
