package bannedword

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/telemetry"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

type staticStore struct {
	words []string
	err   error
	calls int
}

func (s *staticStore) BannedWords(_ context.Context) ([]string, error) {
	s.calls++
	return s.words, s.err
}

func enabledCfg() func() config.BannedWordFilterConfig {
	return func() config.BannedWordFilterConfig {
		return config.BannedWordFilterConfig{Enabled: true}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "helloworld"},
		{"  违 禁\t词\n", "违禁词"},
		{"ＢＡＤ　ｗｏｒｄ", "badword"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetect_Variants(t *testing.T) {
	store := &staticStore{words: []string{"违禁词", "BadWord"}}
	d := NewDetector(store, enabledCfg(), nil)

	tests := []struct {
		name    string
		message string
		blocked bool
	}{
		{"exact", "违禁词", true},
		{"embedded with punctuation", "你好，违禁词！", true},
		{"split by spaces", "违 禁 词", true},
		{"case variation", "this is a BADWORD.", true},
		{"full width", "ｂａｄ ｗｏｒｄ!!", true},
		{"clean", "这是测试消息", false},
		{"partial", "违禁", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := d.Detect(context.Background(), &types.GateRequest{MessageContent: tt.message})
			if r.Blocked != tt.blocked {
				t.Fatalf("expected blocked=%v, got %v", tt.blocked, r.Blocked)
			}
			if tt.blocked && r.Reason != types.ReasonBannedWord {
				t.Errorf("expected reason banned_word, got %q", r.Reason)
			}
			if r.Detector != Name {
				t.Errorf("expected detector %q, got %q", Name, r.Detector)
			}
		})
	}
}

func TestDetect_MultipleMatchesAnyDetail(t *testing.T) {
	store := &staticStore{words: []string{"alpha", "beta"}}
	d := NewDetector(store, enabledCfg(), nil)

	r := d.Detect(context.Background(), &types.GateRequest{MessageContent: "alpha and beta"})
	if !r.Blocked {
		t.Fatal("expected blocked")
	}
	if r.Detail != "alpha" && r.Detail != "beta" {
		t.Errorf("expected detail to be one of the matched words, got %q", r.Detail)
	}
}

func TestDetect_ReadsStoreEveryCall(t *testing.T) {
	store := &staticStore{}
	d := NewDetector(store, enabledCfg(), nil)
	req := &types.GateRequest{MessageContent: "新词出现"}

	if r := d.Detect(context.Background(), req); r.Blocked {
		t.Fatal("expected pass with empty list")
	}
	store.words = []string{"新词"}
	if r := d.Detect(context.Background(), req); !r.Blocked {
		t.Fatal("expected the refreshed list to apply on the next call")
	}
	if store.calls != 2 {
		t.Errorf("expected 2 store reads, got %d", store.calls)
	}
}

func TestDetect_StoreErrorFailsOpen(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetricsWith(reg)
	store := &staticStore{words: []string{"违禁词"}, err: errors.New("redis down")}
	d := NewDetector(store, enabledCfg(), metrics)

	r := d.Detect(context.Background(), &types.GateRequest{MessageContent: "违禁词"})
	if r.Blocked {
		t.Error("store failure must not block")
	}
	if r.Error == "" {
		t.Error("expected the store error to be recorded on the result")
	}

	var m dto.Metric
	if err := metrics.StoreErrorTotal.WithLabelValues("banned_words").Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("expected 1 store error, got %v", m.GetCounter().GetValue())
	}
}

func TestMatch_IgnoresBlankWords(t *testing.T) {
	if _, ok := Match("anything", []string{"", "  "}); ok {
		t.Error("blank words must not match every message")
	}
}
