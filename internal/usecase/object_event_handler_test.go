package usecase

import (
	"context"
	"errors"
	"testing"

	"CoinPull/internal/domain/models"
	"CoinPull/pkg/util"
)

type stubRunner struct {
	keys [][]string
	err  error
}

func (s *stubRunner) RunObjects(_ context.Context, keys []string) (RunReport, error) {
	s.keys = append(s.keys, keys)
	return RunReport{RunID: "r1"}, s.err
}

func TestObjectEventHandler(t *testing.T) {
	cases := []struct {
		name      string
		payload   string
		runErr    error
		wantRuns  int
		wantErr   bool
		permanent bool
	}{
		{name: "snapshot", payload: `{"bucket":"b","name":"raw_data/raw_prices_20250101_000000.json"}`, wantRuns: 1},
		{name: "non json object", payload: `{"bucket":"b","name":"raw_data/readme.md"}`},
		{name: "bad payload", payload: `{`, wantErr: true, permanent: true},
		{name: "missing name", payload: `{"bucket":"b"}`, wantErr: true, permanent: true},
		{name: "transient failure", payload: `{"name":"raw_prices_20250101_000000.json"}`, runErr: errors.New("disk"), wantRuns: 1, wantErr: true},
		{name: "data failure", payload: `{"name":"raw_prices_20250101_000000.json"}`, runErr: &models.SchemaCastError{Source: "x"}, wantRuns: 1, wantErr: true, permanent: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &stubRunner{err: tc.runErr}
			h := NewObjectEventHandler("objects", r, nil)
			err := h.Handle(context.Background(), []byte(tc.payload))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if util.IsPermanent(err) != tc.permanent {
				t.Fatalf("permanent = %v, want %v", util.IsPermanent(err), tc.permanent)
			}
			if len(r.keys) != tc.wantRuns {
				t.Fatalf("runs = %d, want %d", len(r.keys), tc.wantRuns)
			}
		})
	}
	if NewObjectEventHandler("objects", &stubRunner{}, nil).Topic() != "objects" {
		t.Fatalf("topic mismatch")
	}
}
