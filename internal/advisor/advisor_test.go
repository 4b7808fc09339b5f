package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TradeSentinel/internal/model"
)

func TestParseJudgment(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Decision
		wantErr bool
	}{
		{"plain", `{"decision": "Buy", "explanation": "oversold"}`, DecisionBuy, false},
		{"fenced", "```json\n{\"decision\": \"SELL\", \"explanation\": \"x\"}\n```", DecisionSell, false},
		{"with prose", `Here is my answer: {"decision":"hold","explanation":"flat"} Good luck.`, DecisionHold, false},
		{"unknown decision", `{"decision": "short"}`, "", true},
		{"no json", "I think you should buy.", "", true},
		{"broken json", `{"decision": "buy"`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := ParseJudgment(tt.reply)
			if tt.wantErr {
				if !errors.Is(err, ErrUnparseable) {
					t.Fatalf("expected ErrUnparseable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if j.Decision != tt.want {
				t.Errorf("expected %s, got %s", tt.want, j.Decision)
			}
		})
	}
}

func TestApply(t *testing.T) {
	buy := model.Signal{Action: model.ActionBuy, Reason: "score"}
	sell := model.Signal{Action: model.ActionSell, Reason: "score"}
	tests := []struct {
		name string
		mode Mode
		sig  model.Signal
		j    Judgment
		want model.Action
	}{
		{"off keeps buy", ModeOff, buy, HoldJudgment(""), model.ActionBuy},
		{"confirm agrees", ModeConfirm, buy, Judgment{Decision: DecisionBuy}, model.ActionBuy},
		{"confirm vetoes", ModeConfirm, buy, Judgment{Decision: DecisionHold}, model.ActionHold},
		{"confirm keeps sell", ModeConfirm, sell, Judgment{Decision: DecisionBuy}, model.ActionSell},
		{"replace sells", ModeReplace, buy, Judgment{Decision: DecisionSell}, model.ActionSell},
		{"replace holds", ModeReplace, sell, HoldJudgment(""), model.ActionHold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Apply(tt.mode, tt.sig, tt.j).Action; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func window(n int) []model.Bar {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{Time: t0.Add(time.Duration(i) * 5 * time.Minute), Open: 1, High: 1, Low: 1, Close: 1}
	}
	return bars
}

func TestHTTPAdvisor(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer k" {
			http.Error(w, "bad request", http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"decision\":\"Buy\",\"explanation\":\"bounce\"}"}}]}`))
	}))
	defer srv.Close()

	a := NewHTTPAdvisor(srv.URL+"/", "k", "gpt-test")
	a.MaxBars = 10
	j, err := a.Advise(context.Background(), window(50))
	if err != nil {
		t.Fatal(err)
	}
	if j.Decision != DecisionBuy || j.Explanation != "bounce" {
		t.Errorf("unexpected judgment %+v", j)
	}
	if got.Model != "gpt-test" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if n := strings.Count(got.Messages[1].Content, `"t":`); n != 10 {
		t.Errorf("expected 10 bars in prompt, got %d", n)
	}
}

func TestAsk_FallsBackToHold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	j := Ask(context.Background(), NewHTTPAdvisor(srv.URL, "", "m"), window(5), nil)
	if j.Decision != DecisionHold {
		t.Errorf("expected hold, got %s", j.Decision)
	}
	if j := Ask(context.Background(), Noop{}, window(5), nil); j.Decision != DecisionHold {
		t.Errorf("noop: expected hold, got %s", j.Decision)
	}
}
