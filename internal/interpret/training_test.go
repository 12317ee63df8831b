package interpret

import (
	"strings"
	"testing"
)

func TestTrainingParserEpochLine(t *testing.T) {
	p := NewTrainingParser()
	st := NewState()

	p.ParseLine("Epoch 3/10 - loss: 0.45 - accuracy: 0.91", st)

	if !almostEqual(st.Progress, 0.3) {
		t.Errorf("Expected progress 0.3, got %v", st.Progress)
	}
	if v := st.Metrics["epoch"]; v.Int != 3 {
		t.Errorf("Expected epoch=3, got %+v", v)
	}
	if v := st.Metrics["total_epochs"]; v.Int != 10 {
		t.Errorf("Expected total_epochs=10, got %+v", v)
	}
	if v := st.Metrics["loss"]; !almostEqual(v.Float, 0.45) {
		t.Errorf("Expected loss=0.45, got %+v", v)
	}
	if v := st.Metrics["accuracy"]; !almostEqual(v.Float, 0.91) {
		t.Errorf("Expected accuracy=0.91, got %+v", v)
	}
	if st.Phase != "Training" {
		t.Errorf("Expected phase Training, got %q", st.Phase)
	}
	if len(st.Errors) != 0 {
		t.Errorf("Expected no errors, got %v", st.Errors)
	}
}

func TestTrainingParserMetrics(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		metric string
		want   float64
	}{
		{"loss with equals", "train loss=1.234", "loss", 1.234},
		{"loss case-insensitive", "Loss: 0.07", "loss", 0.07},
		{"accuracy abbreviated", "acc=0.88", "accuracy", 0.88},
		{"learning rate", "lr=0.001", "learning_rate", 0.001},
		{"learning rate scientific", "learning rate: 1e-4", "learning_rate", 0.0001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewTrainingParser()
			st := NewState()
			p.ParseLine(tt.line, st)

			v, ok := st.Metrics[tt.metric]
			if !ok {
				t.Fatalf("Expected metric %q, got %v", tt.metric, st.Metrics)
			}
			if !almostEqual(v.Float, tt.want) {
				t.Errorf("Expected %s=%v, got %v", tt.metric, tt.want, v.Float)
			}
		})
	}
}

func TestTrainingParserStepProgress(t *testing.T) {
	p := NewTrainingParser()
	st := NewState()

	p.ParseLine("step 250/1000", st)

	if !almostEqual(st.Progress, 0.25) {
		t.Errorf("Expected progress 0.25, got %v", st.Progress)
	}
	if v := st.Metrics["step"]; v.Int != 250 {
		t.Errorf("Expected step=250, got %+v", v)
	}
}

func TestTrainingParserPhases(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"Validation: loss=0.5", "Validation"},
		{"Validating on holdout set", "Validation"},
		{"Test accuracy: 0.93", "Testing"},
		{"Training started", "Training"},
		{"Epoch 1/5", "Training"},
		{"unrelated output", ""},
	}

	for _, tt := range tests {
		p := NewTrainingParser()
		st := NewState()
		p.ParseLine(tt.line, st)
		if st.Phase != tt.want {
			t.Errorf("ParseLine(%q): expected phase %q, got %q", tt.line, tt.want, st.Phase)
		}
	}
}

func TestTrainingParserFatalSignals(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr string
	}{
		{"NaN loss", "Epoch 7/10 - loss: nan", "loss is NaN, training diverged"},
		{"NaN uppercase", "LOSS became NaN at step 40", "loss is NaN, training diverged"},
		{"CUDA OOM", "RuntimeError: CUDA out of memory. Tried to allocate 2.0 GiB", "out of GPU memory"},
		{"generic error", "Error: dataset not found", "Error: dataset not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewTrainingParser()
			st := NewState()
			p.ParseLine(tt.line, st)

			if len(st.Errors) != 1 {
				t.Fatalf("Expected one error, got %v", st.Errors)
			}
			if st.Errors[0] != tt.wantErr {
				t.Errorf("Expected error %q, got %q", tt.wantErr, st.Errors[0])
			}
		})
	}
}

// TestTrainingParserRun replays a short training log and checks the
// accumulated state, including that errors only append.
func TestTrainingParserRun(t *testing.T) {
	log := strings.Join([]string{
		"Training started",
		"Epoch 1/4 - loss: 2.31 - accuracy: 0.42",
		"Epoch 2/4 - loss: 1.10 - accuracy: 0.67",
		"Validating on holdout set",
		"val loss: 1.25",
		"Epoch 3/4 - loss: nan",
		"Epoch 4/4 - loss: 0.71 - accuracy: 0.81",
	}, "\n") + "\n"

	sess := NewSession(NewTrainingParser())
	sess.Consume([]byte(log))
	st := sess.State()

	if !almostEqual(st.Progress, 1.0) {
		t.Errorf("Expected progress 1.0, got %v", st.Progress)
	}
	if v := st.Metrics["loss"]; !almostEqual(v.Float, 0.71) {
		t.Errorf("Expected final loss 0.71, got %+v", v)
	}
	if v := st.Metrics["accuracy"]; !almostEqual(v.Float, 0.81) {
		t.Errorf("Expected final accuracy 0.81, got %+v", v)
	}
	if len(st.Errors) != 1 || st.Errors[0] != "loss is NaN, training diverged" {
		t.Errorf("Expected the NaN divergence error retained, got %v", st.Errors)
	}
	if st.Phase != "Training" {
		t.Errorf("Expected phase Training after final epoch, got %q", st.Phase)
	}
}
